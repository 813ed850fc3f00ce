// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server implements the threadchat backend HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/threadchat/internal/logging"
	"github.com/jeranaias/threadchat/internal/ollama"
	"github.com/jeranaias/threadchat/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is where the backend listens by default.
	DefaultAddr = "127.0.0.1:8000"

	// MaxRequestBodySize caps request bodies (8MB, long transcripts included).
	MaxRequestBodySize = 8 * 1024 * 1024

	// DefaultTemperature is used when a generation request omits it.
	DefaultTemperature = 0.7

	// DefaultMaxTokens is used when a generation request omits it.
	DefaultMaxTokens = 2000

	// DefaultInstallWait is how long an install waits for an early failure.
	DefaultInstallWait = time.Second

	// Version is the server version.
	Version = "0.3.0"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

// Config holds server options.
type Config struct {
	// Addr is the listen address (default: 127.0.0.1:8000)
	Addr string

	// AllowedOrigins for CORS. Empty means every origin.
	AllowedOrigins []string

	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size per client IP.
	RateBurst int

	// MaxBodyBytes caps request bodies (default: MaxRequestBodySize)
	MaxBodyBytes int64

	// InstallWait bounds the wait for an early install failure.
	InstallWait time.Duration
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           DefaultAddr,
		AllowedOrigins: []string{"*"},
		RateLimit:      20,
		RateBurst:      60,
		MaxBodyBytes:   MaxRequestBodySize,
		InstallWait:    DefaultInstallWait,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Server serves the backend API on top of a thread store and an Ollama
// client.
type Server struct {
	cfg    Config
	router *http.ServeMux
	server *http.Server

	store  storage.Store
	ollama *ollama.Client
	logger *log.Logger

	// DNS diagnostics
	resolver   hostResolver
	resolvConf string

	// pulls outlive the install request that started them
	pullCtx    context.Context
	pullCancel context.CancelFunc
	pullsMu    sync.Mutex
	pulls      map[string]bool

	// sleep paces streamed output; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Server. A nil Ollama client means the default local one.
func New(cfg Config, store storage.Store, client *ollama.Client) *Server {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = def.AllowedOrigins
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	if cfg.InstallWait <= 0 {
		cfg.InstallWait = def.InstallWait
	}
	if cfg.RateLimit > 0 && cfg.RateBurst <= 0 {
		cfg.RateBurst = int(cfg.RateLimit) + 1
	}
	if client == nil {
		client = ollama.NewClient()
	}

	pullCtx, pullCancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		router:     http.NewServeMux(),
		store:      store,
		ollama:     client,
		logger:     logging.Component("server"),
		resolver:   net.DefaultResolver,
		resolvConf: defaultResolvConf,
		pullCtx:    pullCtx,
		pullCancel: pullCancel,
		pulls:      make(map[string]bool),
		sleep:      sleepContext,
	}

	s.setupRoutes()
	return s
}

// WithLogger replaces the server logger.
func (s *Server) WithLogger(l *log.Logger) *Server {
	s.logger = l
	return s
}

// setupRoutes configures the HTTP routes.
func (s *Server) setupRoutes() {
	// Generation
	s.router.HandleFunc("POST /api/generate", s.handleGenerate)
	s.router.HandleFunc("POST /api/generate_raw", s.handleGenerateRaw)
	s.router.HandleFunc("POST /api/send_message", s.handleSendMessage)

	// Threads
	s.router.HandleFunc("POST /api/save_thread", s.handleSaveThread)
	s.router.HandleFunc("GET /api/get_thread/{id}", s.handleGetThread)
	s.router.HandleFunc("GET /api/get_threads", s.handleGetThreads)
	s.router.HandleFunc("DELETE /api/delete_thread/{id}", s.handleDeleteThread)

	// Models
	s.router.HandleFunc("POST /api/check_model", s.handleCheckModel)
	s.router.HandleFunc("POST /api/install_model", s.handleInstallModel)
	s.router.HandleFunc("GET /api/check_all_models", s.handleCheckAllModels)
	s.router.HandleFunc("GET /api/list_small_models", s.handleListSmallModels)

	// Diagnostics
	s.router.HandleFunc("GET /api/check_dns", s.handleCheckDNS)
	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(s.logger),
		RequestIDMiddleware(),
		LoggingMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(&CORSConfig{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "If-None-Match", RequestIDHeader},
			MaxAge:         86400,
		}),
	}
	if s.cfg.RateLimit > 0 {
		middlewares = append(middlewares, RateLimitMiddleware(NewRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst), s.logger))
	}
	return Chain(middlewares...)(s.router)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// no WriteTimeout: generation streams run as long as the model talks
		IdleTimeout: 120 * time.Second,
	}

	s.logger.Info("SERVER_START", "addr", ln.Addr().String(), "version", Version)
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server and cancels running pulls.
func (s *Server) Shutdown(ctx context.Context) error {
	s.pullCancel()
	if s.server == nil {
		return nil
	}
	s.logger.Info("SERVER_SHUTDOWN", "phase", "graceful")
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("WRITE_FAILED", "err", err)
	}
}

// writeDetail writes the {"detail": ...} failure body used by the model
// endpoints.
func (s *Server) writeDetail(w http.ResponseWriter, status int, detail string) {
	s.writeJSON(w, status, map[string]string{"detail": detail})
}

// decodeJSON reads a capped request body into v. On failure the response is
// already written and false is returned.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			s.writeDetail(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		s.writeDetail(w, http.StatusUnprocessableEntity, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
