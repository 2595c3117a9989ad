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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/settingstore/config"
	"github.com/cardinalhq/settingstore/internal/dbopen"
	"github.com/cardinalhq/settingstore/settings"
	"github.com/cardinalhq/settingstore/settingsapi"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the settings HTTP API",
	RunE: func(_ *cobra.Command, _ []string) error {
		servicename := "settingstore-api"
		doneCtx, doneFx, err := setupTelemetry(servicename)
		if err != nil {
			return fmt.Errorf("failed to setup telemetry: %w", err)
		}
		defer func() {
			if err := doneFx(); err != nil {
				slog.Error("Error shutting down telemetry", slog.Any("error", err))
			}
		}()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		repo, closeRepo, err := openRepository(doneCtx, cfg, dbopen.WaitForMigrations())
		if err != nil {
			return fmt.Errorf("failed to open settings repository: %w", err)
		}
		defer closeRepo()

		resolver, err := newResolver(cfg)
		if err != nil {
			return err
		}

		svc := settingsapi.NewService(repo, resolver, cfg.HTTP.Port,
			settings.WithDefaultPackage(cfg.Store.DefaultPackage))
		return svc.Run(doneCtx)
	},
}
