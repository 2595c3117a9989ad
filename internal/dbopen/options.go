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

package dbopen

import "github.com/cardinalhq/settingstore/migrations"

// Options configures how a connection treats the schema version.
type Options struct {
	MigrationCheckOptions []migrations.CheckOption
}

// SkipMigrationCheck is used by the migrate command, which brings the schema
// up to date itself.
func SkipMigrationCheck() Options {
	return Options{
		MigrationCheckOptions: []migrations.CheckOption{
			migrations.WithCheckMode(migrations.CheckModeSkip),
		},
	}
}

// WarnOnMigrationMismatch logs schema mismatches and continues. The CLI
// commands use it so an operator can still inspect an outdated database.
func WarnOnMigrationMismatch() Options {
	return Options{
		MigrationCheckOptions: []migrations.CheckOption{
			migrations.WithCheckMode(migrations.CheckModeWarn),
		},
	}
}

// WaitForMigrations waits for the schema to catch up. This is the default.
func WaitForMigrations() Options {
	return Options{
		MigrationCheckOptions: []migrations.CheckOption{
			migrations.WithCheckMode(migrations.CheckModeWait),
		},
	}
}

// CheckOptions returns the migration check options of the first Options, if any.
func CheckOptions(opts ...Options) []migrations.CheckOption {
	if len(opts) == 0 {
		return nil
	}
	return opts[0].MigrationCheckOptions
}
