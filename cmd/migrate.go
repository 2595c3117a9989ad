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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/settingstore/config"
	"github.com/cardinalhq/settingstore/internal/dbopen"
	"github.com/cardinalhq/settingstore/settingsdb"
	settingsdbmigrations "github.com/cardinalhq/settingstore/settingsdb/migrations"
	"github.com/cardinalhq/settingstore/settingsdb/sqlite"
)

var databases string

func init() {
	MigrateCmd.Flags().StringVar(&databases, "databases", "settingsdb", "Comma-separated list of databases to migrate (settingsdb,sqlite)")
	rootCmd.AddCommand(MigrateCmd)
}

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  "Run database migrations on specified databases",
	RunE:  migrate,
}

func migrate(_ *cobra.Command, _ []string) error {
	var result *multierror.Error

	for _, db := range strings.Split(databases, ",") {
		db = strings.TrimSpace(db)
		switch db {
		case "settingsdb":
			slog.Info("Running settingsdb migrations")
			if err := migrateSettingsDB(); err != nil {
				result = multierror.Append(result, fmt.Errorf("failed to migrate settingsdb: %w", err))
			} else {
				slog.Info("settingsdb migrations completed successfully")
			}
		case "sqlite":
			slog.Info("Running sqlite migrations")
			if err := migrateSQLite(); err != nil {
				result = multierror.Append(result, fmt.Errorf("failed to migrate sqlite: %w", err))
			} else {
				slog.Info("sqlite migrations completed successfully")
			}
		case "":
		default:
			result = multierror.Append(result, fmt.Errorf("unknown database: %s", db))
		}
	}

	return result.ErrorOrNil()
}

func migrateSettingsDB() error {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(5*time.Minute))
	defer cancel()

	pool, err := settingsdb.ConnectToSettingsDB(ctx, dbopen.SkipMigrationCheck())
	if err != nil {
		if errors.Is(err, dbopen.ErrDatabaseNotConfigured) {
			slog.Info("SettingsDB not configured, skipping migration")
			return nil
		}
		return err
	}
	defer pool.Close()
	return settingsdbmigrations.RunMigrationsUp(context.Background(), pool)
}

// migrateSQLite opens the configured file, which applies pending migrations.
func migrateSQLite() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := sqlite.Open(ctx, cfg.Store.SQLitePath)
	if err != nil {
		return err
	}
	return db.Close()
}
