// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tyrowin/relaychat/internal/protocol"
)

const (
	defaultAddr          = ":12345"
	defaultHTTPAddr      = ":8080"
	defaultWriteTimeout  = 10 * time.Second
	defaultWelcomePrompt = "Welcome! Type your nickname: "
)

// RateLimitConfig defines the parameters for per-session chat rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay configuration.
type Config struct {
	// Addr is the TCP listen address of the line relay.
	Addr string
	// HTTPAddr is the listen address of the health and WebSocket endpoints.
	// Empty disables the HTTP front end.
	HTTPAddr       string
	AllowedOrigins []string
	// MaxFrameSize bounds a single line on the TCP relay and a single
	// message on the WebSocket front end.
	MaxFrameSize  int
	RateLimit     RateLimitConfig
	WriteTimeout  time.Duration
	WelcomePrompt string
}

func defaultConfig() Config {
	return Config{
		Addr:     defaultAddr,
		HTTPAddr: defaultHTTPAddr,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxFrameSize: protocol.DefaultMaxFrameSize,
		RateLimit: RateLimitConfig{
			Burst:          10,
			RefillInterval: time.Second,
		},
		WriteTimeout:  defaultWriteTimeout,
		WelcomePrompt: defaultWelcomePrompt,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()

	if addr := os.Getenv("CHAT_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	// HTTP_ADDR may be set to "-" to disable the HTTP front end.
	if addr, ok := os.LookupEnv("HTTP_ADDR"); ok {
		if addr == "-" {
			addr = ""
		}
		cfg.HTTPAddr = addr
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxFrameSize = parseIntValue(maxSize, cfg.MaxFrameSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if timeout := os.Getenv("WRITE_TIMEOUT"); timeout != "" {
		cfg.WriteTimeout = parseSeconds(timeout, cfg.WriteTimeout)
	}

	return &cfg
}

// sanitized returns a copy of cfg with unusable values replaced by defaults.
func (cfg Config) sanitized() Config {
	defaults := defaultConfig()

	if cfg.Addr == "" {
		cfg.Addr = defaults.Addr
	}

	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = defaults.MaxFrameSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = defaults.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}

	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}

	if cfg.WelcomePrompt == "" {
		cfg.WelcomePrompt = defaults.WelcomePrompt
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
