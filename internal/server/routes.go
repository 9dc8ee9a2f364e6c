// Package server wires HTTP handlers into a ServeMux for the relay's
// browser front end via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up handlers for health check, WebSocket endpoint, and test page.
// WebSocket clients join hub, so they share the relay with TCP sessions.
func SetupRoutes(hub *Hub, cfg *Config) *http.ServeMux {
	if cfg == nil {
		cfg = NewConfig()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(hub, *cfg))
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
