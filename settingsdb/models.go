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

type SettingAndValueRow struct {
	ID                 int64   `json:"id"`
	Package            string  `json:"package"`
	Name               string  `json:"name"`
	DefaultValue       *string `json:"default_value"`
	OverridesPermitted bool    `json:"overrides_permitted"`
	ValueID            *int64  `json:"value_id"`
	Value              *string `json:"value"`
	IdentityID         *int64  `json:"identity_id"`
}

type SettingIDRow struct {
	Name string `json:"name"`
	ID   int64  `json:"id"`
}

type SettingNameRow struct {
	Package string `json:"package"`
	Name    string `json:"name"`
}

type InsertSettingParams struct {
	Name    string `json:"name"`
	Package string `json:"package"`
}

type UpsertDefaultValueParams struct {
	SettingID int64   `json:"setting_id"`
	Value     *string `json:"value"`
}

type UpsertIdentityValueParams struct {
	SettingID  int64   `json:"setting_id"`
	Value      *string `json:"value"`
	IdentityID int64   `json:"identity_id"`
}

type DeleteIdentityValueParams struct {
	SettingID  int64 `json:"setting_id"`
	IdentityID int64 `json:"identity_id"`
}

type GetSettingIDsByNamesParams struct {
	Package string   `json:"package"`
	Names   []string `json:"names"`
}

type ListGroupSettingsAndValuesParams struct {
	Package string `json:"package"`
	Pattern string `json:"pattern"`
}
