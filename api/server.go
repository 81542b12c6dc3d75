// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package api exposes ingestion and question answering over HTTP.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/poiesic/lectern/core"
	"github.com/poiesic/lectern/ingestion"
	"github.com/poiesic/lectern/rag"
	"github.com/urfave/negroni"
)

// Backend is the set of operations the API serves.
type Backend interface {
	SubmitDocument(ctx context.Context, req *ingestion.Request) (core.ID, error)
	Status(ctx context.Context, id core.ID) (*core.StatusReport, error)
	Documents(ctx context.Context) ([]*core.Document, error)
	QueryFull(ctx context.Context, q *rag.FullQuery) (*core.Answer, error)
	QuerySelected(ctx context.Context, selectedText, question string, temperature float64) (*core.Answer, error)
}

// ErrBackendRequired is returned when NewServer is given no backend.
var ErrBackendRequired = errors.New("backend required")

const (
	DefaultMaxBodyBytes    = 64 << 20
	DefaultShutdownTimeout = 10 * time.Second
)

// Server routes HTTP requests to a Backend.
type Server struct {
	backend      Backend
	maxBodyBytes int64
	maxResults   int
	temperature  float64
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMaxBodyBytes caps request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) error {
		if n > 0 {
			s.maxBodyBytes = n
		}
		return nil
	}
}

// WithQueryDefaults sets the result count and temperature used when a
// request leaves them out.
func WithQueryDefaults(maxResults int, temperature float64) Option {
	return func(s *Server) error {
		if maxResults > 0 {
			s.maxResults = maxResults
		}
		s.temperature = temperature
		return nil
	}
}

// NewServer creates a Server.
func NewServer(backend Backend, opts ...Option) (*Server, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	s := &Server{
		backend:      backend,
		maxBodyBytes: DefaultMaxBodyBytes,
		maxResults:   rag.DefaultMaxResults,
		temperature:  rag.DefaultTemperature,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "api")
	return s, nil
}

// Router returns the route table without middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/documents", s.submitDocument).Methods(http.MethodPost)
	r.HandleFunc("/documents", s.listDocuments).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}", s.documentStatus).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}/query", s.queryDocument).Methods(http.MethodPost)
	r.HandleFunc("/query/selected", s.querySelected).Methods(http.MethodPost)
	return r
}

// Handler returns the router wrapped in recovery and request logging.
func (s *Server) Handler() http.Handler {
	n := negroni.New()

	recovery := negroni.NewRecovery()
	recovery.Logger = slog.NewLogLogger(s.logger.Handler(), slog.LevelError)
	recovery.PrintStack = false
	n.Use(recovery)

	logger := negroni.NewLogger()
	logger.ALogger = slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo)
	n.Use(logger)

	n.UseHandler(s.Router())
	return n
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
