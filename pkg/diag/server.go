/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package diag serves the local diagnostics endpoints: JSON status
// documents, prometheus metrics, and a liveness probe.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	requestTimeout    = 2 * time.Second
)

// StatusFunc produces the JSON document served at one route.
type StatusFunc func(ctx context.Context) (any, error)

type Option func(*Server)

// WithAllowedOrigin lets a browser UI on origin read the endpoints.
func WithAllowedOrigin(origin string) Option {
	return func(s *Server) {
		s.origin = origin
	}
}

type Server struct {
	router *mux.Router
	logger *zap.Logger
	origin string
	srv    *http.Server
	ln     net.Listener
}

func New(logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		router: mux.NewRouter(),
		logger: logger.With(zap.String("component", "diag")),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(s.logRequests)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)

	return s
}

// Handle serves fn's result as JSON at path.
func (s *Server) Handle(path string, fn StatusFunc) {
	s.router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
		defer cancel()

		doc, err := fn(ctx)
		if err != nil {
			s.writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, doc)
	}).Methods(http.MethodGet)
}

// HandleMetrics mounts a metrics handler at /metrics.
func (s *Server) HandleMetrics(h http.Handler) {
	s.router.Handle("/metrics", h).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	if s.origin == "" {
		return s.router
	}

	return corsMiddleware(s.origin, s.router)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = http.StatusServiceUnavailable
	}

	s.logger.Warn("status request failed", zap.Error(err))
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

// Listen binds addr; Serve then runs until Stop.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.ln = ln
	s.srv = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: readHeaderTimeout}

	return nil
}

func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}

	return s.ln.Addr().String()
}

func (s *Server) Serve() error {
	if s.srv == nil {
		return errors.New("diag: Listen not called")
	}

	s.logger.Info("diagnostics listening", zap.String("addr", s.Addr()))

	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	return s.srv.Shutdown(ctx)
}
