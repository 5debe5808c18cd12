// Package server defines the core Server struct that composes the app's main dependencies.
//
// It contains the initialization logic to spin up the HTTP server
// and handles graceful shutdowns.
//
// It owns the lifecycle of:
//   - configuration
//   - logger + optional New Relic service wrapper
//   - the validation schema registry
//   - http.Server
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/deppfellow/reqvalid/internal/config"
	"github.com/deppfellow/reqvalid/internal/schema"
	"github.com/rs/zerolog"

	loggerPkg "github.com/deppfellow/reqvalid/internal/logger"
)

// Server is the application container that holds shared resources.
//
// It is not the HTTP server itself; that one lives in httpServer and is
// configured by SetupHTTPServer.
type Server struct {
	Config *config.Config
	Logger *zerolog.Logger

	// LoggerService holds the New Relic application, nil inside when disabled.
	LoggerService *loggerPkg.LoggerService

	// Schemas holds the compiled JSON Schemas routes validate against.
	// Read-only once New returns.
	Schemas *schema.Registry

	httpServer *http.Server
}

// New constructs a Server and loads the validation schemas: the built-in
// ones, then cfg.Validation.SchemaDir when set. A schema that fails to
// compile stops start-up.
func New(cfg *config.Config, logger *zerolog.Logger, loggerService *loggerPkg.LoggerService) (*Server, error) {
	schemas, err := schema.Load(cfg.Validation.SchemaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load validation schemas: %w", err)
	}

	logger.Info().
		Strs("schemas", schemas.Names()).
		Str("schema_dir", cfg.Validation.SchemaDir).
		Msg("loaded validation schemas")

	return &Server{
		Config:        cfg,
		Logger:        logger,
		LoggerService: loggerService,
		Schemas:       schemas,
	}, nil
}

// SetupHTTPServer configures the internal net/http server around handler.
func (s *Server) SetupHTTPServer(handler http.Handler) {
	s.httpServer = &http.Server{
		Addr:    ":" + s.Config.Server.Port,
		Handler: handler,

		// Config stores seconds.
		ReadTimeout:  time.Duration(s.Config.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.Config.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(s.Config.Server.IdleTimeout) * time.Second,
	}
}

// Start runs the HTTP server. It blocks until the server stops and returns
// nil after a graceful Shutdown.
func (s *Server) Start() error {
	if s.httpServer == nil {
		return errors.New("HTTP server not initialized")
	}

	s.Logger.Info().
		Str("port", s.Config.Server.Port).
		Str("env", s.Config.Primary.Env).
		Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, waits for in-flight requests until
// ctx is done and flushes New Relic.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.LoggerService.Shutdown()

	if s.httpServer == nil {
		return nil
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	return nil
}
