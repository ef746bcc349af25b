package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/buzzline/buzzline/go/internal/gateway"
)

func setupServer(cfg *Config, service *gateway.Service) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	// WebSocket endpoint and connection stats
	service.RegisterRoutes(mux)

	setupHealthCheck(mux)

	// Serve the client bundle when a static dir is configured
	if cfg.Server.StaticDir != "" {
		if _, err := os.Stat(cfg.Server.StaticDir); err == nil {
			mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))
			log.Info().Str("static_dir", cfg.Server.StaticDir).Msg("serving static assets")
		} else {
			log.Warn().Str("static_dir", cfg.Server.StaticDir).Msg("static dir not found, skipping")
		}
	}

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      c.Handler(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func setupHealthCheck(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}
