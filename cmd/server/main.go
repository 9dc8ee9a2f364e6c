package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/relaychat/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config := loadConfig()

	fmt.Println("Starting relay chat server...")
	log.Printf("Started with config: %+v", *config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub()
	relay := server.NewServer(config, hub)

	errs := make(chan error, 2)
	go func() {
		errs <- relay.ListenAndServe()
	}()

	var httpServer *http.Server
	if config.HTTPAddr != "" {
		httpServer = server.CreateServer(config.HTTPAddr, server.SetupRoutes(hub, config))
		go func() {
			errs <- server.StartServer(httpServer)
		}()
	}

	select {
	case <-ctx.Done():
		log.Println("Got stop signal")
	case err := <-errs:
		if !errors.Is(err, server.ErrServerClosed) && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}

	if httpServer != nil {
		_ = server.ShutdownServer(httpServer, shutdownTimeout)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := relay.Shutdown(shutdownCtx); err != nil {
		log.Printf("Relay shutdown: %v", err)
	}
	// Browser peers are not tracked by the TCP relay; close whatever is left.
	hub.CloseAll()
	log.Println("Server stopped")
}

// loadConfig applies command-line flags over the environment configuration.
func loadConfig() *server.Config {
	config := server.NewConfigFromEnv()

	fs := flag.CommandLine
	out := fs.Output()
	fs.Usage = func() {
		_, _ = fmt.Fprintf(out, "Launch text chat relay over TCP\n\n\t%s [options]\nOptions:\n\n", os.Args[0])
		fs.PrintDefaults()
		_, _ = fmt.Fprint(out, "\n")
	}

	fs.StringVar(&config.Addr, "addr", config.Addr, "TCP listen address of the line relay")
	fs.StringVar(&config.HTTPAddr, "http", config.HTTPAddr, "HTTP listen address for the WebSocket front end (empty disables it)")
	fs.IntVar(&config.MaxFrameSize, "max-frame", config.MaxFrameSize, "Maximum line length in bytes")
	fs.IntVar(&config.RateLimit.Burst, "rate-burst", config.RateLimit.Burst, "Chat lines allowed per refill interval")
	fs.DurationVar(&config.RateLimit.RefillInterval, "rate-interval", config.RateLimit.RefillInterval, "Rate limit refill interval")
	fs.DurationVar(&config.WriteTimeout, "write-timeout", config.WriteTimeout, "Per-recipient write deadline")
	flag.Parse()

	return config
}
