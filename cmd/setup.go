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

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cardinalhq/settingstore/config"
	"github.com/cardinalhq/settingstore/internal/dbopen"
	"github.com/cardinalhq/settingstore/internal/identity"
	"github.com/cardinalhq/settingstore/settings"
	"github.com/cardinalhq/settingstore/settingscache"
	"github.com/cardinalhq/settingstore/settingsdb"
	"github.com/cardinalhq/settingstore/settingsdb/sqlite"
)

// openRepository builds the repository selected by cfg.Store. The returned
// function releases everything that was opened.
func openRepository(ctx context.Context, cfg *config.Config, opts ...dbopen.Options) (settings.Repository, func(), error) {
	var (
		repo    settings.Repository
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Store.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() {
			if err := db.Close(); err != nil {
				slog.Warn("Failed to close sqlite database", slog.Any("error", err))
			}
		})
		repo = db
	case config.DriverPostgres:
		store, err := settingsdb.SettingsDBStore(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, store.Close)
		repo = store
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if cfg.Store.Mode == config.ModeCache {
		backend := settingscache.NewTTLBackend()
		closers = append(closers, backend.Close)
		repo = settingscache.New(repo, backend, settingscache.WithCacheKey(cfg.Store.CacheKey))
	}

	slog.Info("Settings repository ready",
		slog.String("driver", cfg.Store.Driver),
		slog.String("mode", cfg.Store.Mode))
	return repo, closeAll, nil
}

// newResolver trusts bearer tokens when a JWT secret is configured and the
// identity header otherwise.
func newResolver(cfg *config.Config) (identity.Resolver, error) {
	if cfg.Auth.JWTSecret != "" {
		return identity.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	}
	slog.Warn("No JWT secret configured, trusting identity header",
		slog.String("header", cfg.HTTP.IdentityHeader))
	return identity.HeaderResolver{Header: cfg.HTTP.IdentityHeader}, nil
}
