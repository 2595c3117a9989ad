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

package settingsapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/cardinalhq/settingstore/internal/identity"
	"github.com/cardinalhq/settingstore/settings"
)

type storeKey struct{}

type requestIDKey struct{}

// WithStore returns a new context carrying the request's settings Store.
func WithStore(ctx context.Context, store *settings.Store) context.Context {
	return context.WithValue(ctx, storeKey{}, store)
}

// StoreFromContext retrieves the Store placed by SaveOnTerminate.
func StoreFromContext(ctx context.Context) (*settings.Store, bool) {
	store, ok := ctx.Value(storeKey{}).(*settings.Store)
	return store, ok && store != nil
}

// RequestIDFromContext returns the id assigned to the request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// SaveOnTerminate gives every request its own Store over repo and saves it
// after the handler returns. The Store acts for the identity found in the
// request context.
func SaveOnTerminate(repo settings.Repository, opts ...settings.StoreOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := settings.New(repo, identity.Context, opts...)
			ctx := WithStore(r.Context(), store)
			next.ServeHTTP(w, r.WithContext(ctx))

			if !store.Dirty() {
				return
			}
			// The client may be gone; the save still has to happen.
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if _, err := store.Save(saveCtx); err != nil {
				recordSaveFailure(saveCtx)
				slog.Error("Failed to save settings at end of request",
					slog.String("request_id", RequestIDFromContext(ctx)),
					slog.Any("error", err))
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestLogging assigns a request id, then records metrics and a debug log
// line once the request completes.
func requestLogging(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))

		elapsed := time.Since(start)
		recordRequest(r.Context(), route, rec.status, elapsed)
		slog.Debug("Handled settings request",
			slog.String("request_id", id),
			slog.String("route", route),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", elapsed))
	})
}
