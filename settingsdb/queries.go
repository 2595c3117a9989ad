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

package settingsdb

import (
	"context"

	"github.com/jackc/pgx/v5"
)

const listSettingsAndValues = `-- name: ListSettingsAndValues :many
SELECT s.id, s.package, s.name, s.default_value, s.overrides_permitted,
       v.id AS value_id, v.value, v.identity_id
FROM settings s
LEFT JOIN setting_values v ON v.setting_id = s.id
ORDER BY s.id, v.id
`

func (q *Queries) ListSettingsAndValues(ctx context.Context) ([]SettingAndValueRow, error) {
	rows, err := q.db.Query(ctx, listSettingsAndValues)
	if err != nil {
		return nil, err
	}
	return scanSettingAndValueRows(rows)
}

const listGroupSettingsAndValues = `-- name: ListGroupSettingsAndValues :many
SELECT s.id, s.package, s.name, s.default_value, s.overrides_permitted,
       v.id AS value_id, v.value, v.identity_id
FROM settings s
LEFT JOIN setting_values v ON v.setting_id = s.id
WHERE s.package = $1 AND s.name LIKE $2 ESCAPE '\'
ORDER BY s.id, v.id
`

func (q *Queries) ListGroupSettingsAndValues(ctx context.Context, arg ListGroupSettingsAndValuesParams) ([]SettingAndValueRow, error) {
	rows, err := q.db.Query(ctx, listGroupSettingsAndValues, arg.Package, arg.Pattern)
	if err != nil {
		return nil, err
	}
	return scanSettingAndValueRows(rows)
}

func scanSettingAndValueRows(rows pgx.Rows) ([]SettingAndValueRow, error) {
	defer rows.Close()
	var items []SettingAndValueRow
	for rows.Next() {
		var i SettingAndValueRow
		if err := rows.Scan(
			&i.ID,
			&i.Package,
			&i.Name,
			&i.DefaultValue,
			&i.OverridesPermitted,
			&i.ValueID,
			&i.Value,
			&i.IdentityID,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getSettingIDsByNames = `-- name: GetSettingIDsByNames :many
SELECT name, id
FROM settings
WHERE package = $1 AND name = ANY($2::text[])
`

func (q *Queries) GetSettingIDsByNames(ctx context.Context, arg GetSettingIDsByNamesParams) ([]SettingIDRow, error) {
	rows, err := q.db.Query(ctx, getSettingIDsByNames, arg.Package, arg.Names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SettingIDRow
	for rows.Next() {
		var i SettingIDRow
		if err := rows.Scan(&i.Name, &i.ID); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listSettingNames = `-- name: ListSettingNames :many
SELECT package, name
FROM settings
ORDER BY id
`

func (q *Queries) ListSettingNames(ctx context.Context) ([]SettingNameRow, error) {
	rows, err := q.db.Query(ctx, listSettingNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SettingNameRow
	for rows.Next() {
		var i SettingNameRow
		if err := rows.Scan(&i.Package, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// An existing (name, package) row is returned unchanged, so concurrent
// creators agree on the id.
const insertSetting = `-- name: InsertSetting :one
INSERT INTO settings (name, package)
VALUES ($1, $2)
ON CONFLICT (name, package) DO UPDATE SET updated_at = settings.updated_at
RETURNING id
`

func (q *Queries) InsertSetting(ctx context.Context, arg InsertSettingParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertSetting, arg.Name, arg.Package)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const upsertDefaultValue = `-- name: UpsertDefaultValue :exec
INSERT INTO setting_values (setting_id, value, identity_id)
VALUES ($1, $2, NULL)
ON CONFLICT (setting_id) WHERE identity_id IS NULL
DO UPDATE SET value = EXCLUDED.value, updated_at = now()
`

func (q *Queries) UpsertDefaultValue(ctx context.Context, arg UpsertDefaultValueParams) error {
	_, err := q.db.Exec(ctx, upsertDefaultValue, arg.SettingID, arg.Value)
	return err
}

const upsertIdentityValue = `-- name: UpsertIdentityValue :exec
INSERT INTO setting_values (setting_id, value, identity_id)
VALUES ($1, $2, $3)
ON CONFLICT (setting_id, identity_id) WHERE identity_id IS NOT NULL
DO UPDATE SET value = EXCLUDED.value, updated_at = now()
`

func (q *Queries) UpsertIdentityValue(ctx context.Context, arg UpsertIdentityValueParams) error {
	_, err := q.db.Exec(ctx, upsertIdentityValue, arg.SettingID, arg.Value, arg.IdentityID)
	return err
}

const deleteDefaultValue = `-- name: DeleteDefaultValue :execrows
DELETE FROM setting_values
WHERE setting_id = $1 AND identity_id IS NULL
`

func (q *Queries) DeleteDefaultValue(ctx context.Context, settingID int64) (int64, error) {
	result, err := q.db.Exec(ctx, deleteDefaultValue, settingID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteIdentityValue = `-- name: DeleteIdentityValue :execrows
DELETE FROM setting_values
WHERE setting_id = $1 AND identity_id = $2
`

func (q *Queries) DeleteIdentityValue(ctx context.Context, arg DeleteIdentityValueParams) (int64, error) {
	result, err := q.db.Exec(ctx, deleteIdentityValue, arg.SettingID, arg.IdentityID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteSettingByID = `-- name: DeleteSettingByID :execrows
DELETE FROM settings
WHERE id = $1
`

func (q *Queries) DeleteSettingByID(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.Exec(ctx, deleteSettingByID, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
