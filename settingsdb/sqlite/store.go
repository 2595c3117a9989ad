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

// Package sqlite is the embedded SQLite settings repository.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cardinalhq/settingstore/settings"
	"github.com/cardinalhq/settingstore/settingsdb/sqlite/migrations"
)

// Store persists settings in a SQLite file.
type Store struct {
	sqlDB *sql.DB
}

var _ settings.Repository = (*Store)(nil)

// Open opens the SQLite database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) inTx(ctx context.Context, fn func(q queryer) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}
	return tx.Commit()
}

func nowMillis() int64 {
	return time.Now().UTC().UnixMilli()
}

const selectSettingsAndValues = `SELECT s.id, s.package, s.name, s.default_value, s.overrides_permitted,
       v.id, v.value, v.identity_id
FROM settings s
LEFT JOIN setting_values v ON v.setting_id = s.id`

func (s *Store) AllSettingsAndValues(ctx context.Context) ([]settings.Row, error) {
	rows, err := s.sqlDB.QueryContext(ctx, selectSettingsAndValues+` ORDER BY s.id, v.id`)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return scanRows(rows)
}

func (s *Store) SettingsForGroup(ctx context.Context, group, pkg string) ([]settings.Row, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		selectSettingsAndValues+` WHERE s.package = ? AND s.name LIKE ? ESCAPE '\' ORDER BY s.id, v.id`,
		pkg, settings.GroupPattern(group))
	if err != nil {
		return nil, fmt.Errorf("list settings of group %q: %w", group, err)
	}
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]settings.Row, error) {
	defer func() { _ = rows.Close() }()

	var out []settings.Row
	for rows.Next() {
		var (
			row          settings.Row
			defaultValue sql.NullString
			valueID      sql.NullInt64
			value        sql.NullString
			identityID   sql.NullInt64
		)
		if err := rows.Scan(
			&row.SettingID,
			&row.Package,
			&row.Name,
			&defaultValue,
			&row.OverridesPermitted,
			&valueID,
			&value,
			&identityID,
		); err != nil {
			return nil, fmt.Errorf("scan setting row: %w", err)
		}
		if defaultValue.Valid {
			row.DefaultValue = &defaultValue.String
		}
		if valueID.Valid {
			row.ValueID = &valueID.Int64
		}
		if value.Valid {
			row.Value = &value.String
		}
		if identityID.Valid {
			row.Owner = settings.IdentityOwner(identityID.Int64)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate setting rows: %w", err)
	}
	return out, nil
}

func (s *Store) IDsForKeys(ctx context.Context, pkg string, keys []string) (map[string]int64, error) {
	return idsForKeys(ctx, s.sqlDB, pkg, keys)
}

func idsForKeys(ctx context.Context, q queryer, pkg string, keys []string) (map[string]int64, error) {
	found := make(map[string]int64, len(keys))
	if len(keys) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
		args := make([]any, 0, len(keys)+1)
		args = append(args, pkg)
		for _, k := range keys {
			args = append(args, k)
		}
		rows, err := q.QueryContext(ctx,
			`SELECT name, id FROM settings WHERE package = ? AND name IN (`+placeholders+`)`, args...)
		if err != nil {
			return nil, fmt.Errorf("look up setting ids: %w", err)
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			var (
				name string
				id   int64
			)
			if err := rows.Scan(&name, &id); err != nil {
				return nil, fmt.Errorf("scan setting id: %w", err)
			}
			found[name] = id
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("iterate setting ids: %w", err)
		}
	}
	if err := settings.CheckKeys(pkg, keys, found); err != nil {
		return nil, err
	}
	return found, nil
}

func (s *Store) Update(ctx context.Context, settingID int64, value *string, owner settings.Owner) error {
	return update(ctx, s.sqlDB, settingID, value, owner)
}

func update(ctx context.Context, q queryer, settingID int64, value *string, owner settings.Owner) error {
	now := nowMillis()
	var err error
	if owner.Valid {
		_, err = q.ExecContext(ctx,
			`INSERT INTO setting_values (setting_id, value, identity_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (setting_id, identity_id) WHERE identity_id IS NOT NULL
			 DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			settingID, value, owner.IdentityID, now, now)
	} else {
		_, err = q.ExecContext(ctx,
			`INSERT INTO setting_values (setting_id, value, identity_id, created_at, updated_at)
			 VALUES (?, ?, NULL, ?, ?)
			 ON CONFLICT (setting_id) WHERE identity_id IS NULL
			 DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			settingID, value, now, now)
	}
	if err != nil {
		return fmt.Errorf("write value of setting %d for %s: %w", settingID, owner, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, settingID int64, owner settings.Owner) (bool, error) {
	return deleteValue(ctx, s.sqlDB, settingID, owner)
}

func deleteValue(ctx context.Context, q queryer, settingID int64, owner settings.Owner) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if owner.Valid {
		res, err = q.ExecContext(ctx,
			`DELETE FROM setting_values WHERE setting_id = ? AND identity_id = ?`, settingID, owner.IdentityID)
	} else {
		res, err = q.ExecContext(ctx,
			`DELETE FROM setting_values WHERE setting_id = ? AND identity_id IS NULL`, settingID)
	}
	if err != nil {
		return false, fmt.Errorf("delete value of setting %d for %s: %w", settingID, owner, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete value of setting %d: %w", settingID, err)
	}
	return n > 0, nil
}

// DeleteSetting removes the value rows explicitly as well, so the result does
// not depend on foreign key enforcement of the connection.
func (s *Store) DeleteSetting(ctx context.Context, settingID int64) (bool, error) {
	var deleted bool
	err := s.inTx(ctx, func(q queryer) error {
		if _, err := q.ExecContext(ctx, `DELETE FROM setting_values WHERE setting_id = ?`, settingID); err != nil {
			return fmt.Errorf("delete values of setting %d: %w", settingID, err)
		}
		res, err := q.ExecContext(ctx, `DELETE FROM settings WHERE id = ?`, settingID)
		if err != nil {
			return fmt.Errorf("delete setting %d: %w", settingID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete setting %d: %w", settingID, err)
		}
		deleted = n > 0
		return nil
	})
	return deleted, err
}

func (s *Store) Create(ctx context.Context, pkg, name string) (int64, error) {
	return create(ctx, s.sqlDB, pkg, name)
}

// create returns the id of the existing setting when (name, package) is
// already taken.
func create(ctx context.Context, q queryer, pkg, name string) (int64, error) {
	now := nowMillis()
	res, err := q.ExecContext(ctx,
		`INSERT INTO settings (name, package, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		name, pkg, now, now)
	if err != nil {
		if !isUniqueViolation(err) {
			return 0, fmt.Errorf("create setting %s::%s: %w", pkg, name, err)
		}
		var id int64
		if err := q.QueryRowContext(ctx,
			`SELECT id FROM settings WHERE name = ? AND package = ?`, name, pkg).Scan(&id); err != nil {
			return 0, fmt.Errorf("load existing setting %s::%s: %w", pkg, name, err)
		}
		return id, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create setting %s::%s: %w", pkg, name, err)
	}
	return id, nil
}

func (s *Store) CreateMany(ctx context.Context, pkg string, names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))
	err := s.inTx(ctx, func(q queryer) error {
		for _, name := range names {
			id, err := create(ctx, q, pkg, name)
			if err != nil {
				return err
			}
			ids[name] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) UpdateSettings(ctx context.Context, pkg string, values map[string]*string, owner settings.Owner) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return s.inTx(ctx, func(q queryer) error {
		ids, err := idsForKeys(ctx, q, pkg, keys)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if values[key] == nil && owner.Valid {
				if _, err := deleteValue(ctx, q, ids[key], owner); err != nil {
					return err
				}
				continue
			}
			if err := update(ctx, q, ids[key], values[key], owner); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) SettingsGroups(ctx context.Context, skip []string, packages []string) ([]settings.Group, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT package, name FROM settings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list setting names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []settings.SettingKey
	for rows.Next() {
		var k settings.SettingKey
		if err := rows.Scan(&k.Package, &k.Name); err != nil {
			return nil, fmt.Errorf("scan setting name: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate setting names: %w", err)
	}
	return settings.CollectGroups(keys, skip, packages), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
