// Package api hosts the HTTP server: router, middleware, handlers and the
// session layer on top of the domain engines.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/genbu-cloud/genbu/internal/logger"
	"github.com/genbu-cloud/genbu/pkg/accesstoken"
	"github.com/genbu-cloud/genbu/pkg/api/auth"
	"github.com/genbu-cloud/genbu/pkg/filesystem"
	"github.com/genbu-cloud/genbu/pkg/objstore"
	"github.com/genbu-cloud/genbu/pkg/store"
	"github.com/genbu-cloud/genbu/pkg/upload"
	"github.com/genbu-cloud/genbu/pkg/wopi"
)

// Server is the genbu HTTP server. It owns the domain services and supports
// graceful shutdown.
type Server struct {
	server       *http.Server
	uploads      *upload.Service
	config       Config
	shutdownOnce sync.Once
}

// NewServer wires the domain services and creates the HTTP server in a
// stopped state. Call Start to begin serving.
//
// db may be nil; the readiness probe then only reports process liveness.
func NewServer(config Config, jwtConfig auth.JWTConfig, st store.Store, db *gorm.DB, backend objstore.Storage) (*Server, error) {
	config.applyDefaults()
	if config.PublicURL == "" {
		config.PublicURL = fmt.Sprintf("http://localhost:%d", config.Port)
	}

	jwtService, err := auth.NewJWTService(jwtConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	uploads := upload.New(st, backend)
	router := NewRouter(RouterDeps{
		Store:      st,
		DB:         db,
		Backend:    backend,
		JWTService: jwtService,
		Uploads:    uploads,
		WOPI:       wopi.New(st, backend, config.PublicURL),
		Tokens:     accesstoken.New(st),
		Filesystem: filesystem.New(backend),
		Debug:      config.Debug,
	})

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
			Handler:      router,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		uploads: uploads,
		config:  config,
	}, nil
}

// Uploads exposes the upload service for periodic lease pruning.
func (s *Server) Uploads() *upload.Service {
	return s.uploads
}

// Start serves until the context is cancelled or the listener fails. On
// cancellation it shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("HTTP server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			logger.Error("HTTP server shutdown error", "error", err)
		} else {
			logger.Info("HTTP server stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the configured TCP port.
func (s *Server) Port() int {
	return s.config.Port
}
