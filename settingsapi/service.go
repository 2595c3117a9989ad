// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package settingsapi serves a settings repository over HTTP.
package settingsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cardinalhq/settingstore/internal/identity"
	"github.com/cardinalhq/settingstore/settings"
)

// Service exposes settings reads and writes for the calling identity.
type Service struct {
	repo      settings.Repository
	resolver  identity.Resolver
	port      int
	storeOpts []settings.StoreOption
}

// NewService creates a Service listening on port. Identities are taken from
// requests with resolver.
func NewService(repo settings.Repository, resolver identity.Resolver, port int, opts ...settings.StoreOption) *Service {
	if port <= 0 {
		port = 8080
	}
	return &Service{
		repo:      repo,
		resolver:  resolver,
		port:      port,
		storeOpts: opts,
	}
}

// Handler returns the routed API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /api/v1/settings", s.handleList)
	s.handle(mux, "PUT /api/v1/settings", s.handleSetMany)
	s.handle(mux, "GET /api/v1/settings/{key}", s.handleGet)
	s.handle(mux, "PUT /api/v1/settings/{key}", s.handleSet)
	s.handle(mux, "DELETE /api/v1/settings/{key}", s.handleDelete)
	s.handle(mux, "GET /api/v1/groups", s.handleGroups)
	s.handle(mux, "GET /api/v1/groups/{group}", s.handleGroup)
	mux.HandleFunc("GET /healthz", s.healthCheck)
	return mux
}

func (s *Service) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	var handler http.Handler = h
	handler = SaveOnTerminate(s.repo, s.storeOpts...)(handler)
	handler = identity.Middleware(s.resolver)(handler)
	mux.Handle(pattern, requestLogging(pattern, handler))
}

// Run serves the API until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting settings API", slog.String("addr", addr))

	errChan := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

func (s *Service) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
