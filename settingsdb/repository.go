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
	"fmt"
	"sort"

	"github.com/cardinalhq/settingstore/settings"
)

var _ settings.Repository = (*Store)(nil)

func (store *Store) AllSettingsAndValues(ctx context.Context) ([]settings.Row, error) {
	items, err := store.ListSettingsAndValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return toRows(items), nil
}

func (store *Store) IDsForKeys(ctx context.Context, pkg string, keys []string) (map[string]int64, error) {
	items, err := store.GetSettingIDsByNames(ctx, GetSettingIDsByNamesParams{Package: pkg, Names: keys})
	if err != nil {
		return nil, fmt.Errorf("failed to look up setting ids: %w", err)
	}
	found := make(map[string]int64, len(items))
	for _, item := range items {
		found[item.Name] = item.ID
	}
	if err := settings.CheckKeys(pkg, keys, found); err != nil {
		return nil, err
	}
	return found, nil
}

func (store *Store) Update(ctx context.Context, settingID int64, value *string, owner settings.Owner) error {
	var err error
	if owner.Valid {
		err = store.UpsertIdentityValue(ctx, UpsertIdentityValueParams{
			SettingID:  settingID,
			Value:      value,
			IdentityID: owner.IdentityID,
		})
	} else {
		err = store.UpsertDefaultValue(ctx, UpsertDefaultValueParams{
			SettingID: settingID,
			Value:     value,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to write value of setting %d for %s: %w", settingID, owner, err)
	}
	return nil
}

func (store *Store) Delete(ctx context.Context, settingID int64, owner settings.Owner) (bool, error) {
	var (
		n   int64
		err error
	)
	if owner.Valid {
		n, err = store.DeleteIdentityValue(ctx, DeleteIdentityValueParams{
			SettingID:  settingID,
			IdentityID: owner.IdentityID,
		})
	} else {
		n, err = store.DeleteDefaultValue(ctx, settingID)
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete value of setting %d for %s: %w", settingID, owner, err)
	}
	return n > 0, nil
}

func (store *Store) DeleteSetting(ctx context.Context, settingID int64) (bool, error) {
	n, err := store.DeleteSettingByID(ctx, settingID)
	if err != nil {
		return false, fmt.Errorf("failed to delete setting %d: %w", settingID, err)
	}
	return n > 0, nil
}

func (store *Store) Create(ctx context.Context, pkg, name string) (int64, error) {
	id, err := store.InsertSetting(ctx, InsertSettingParams{Name: name, Package: pkg})
	if err != nil {
		return 0, fmt.Errorf("failed to create setting %s::%s: %w", pkg, name, err)
	}
	return id, nil
}

// CreateMany creates all settings in one transaction.
func (store *Store) CreateMany(ctx context.Context, pkg string, names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))
	err := store.execTx(ctx, func(s *Store) error {
		for _, name := range names {
			id, err := s.Create(ctx, pkg, name)
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

// UpdateSettings writes the batch in one transaction after checking that
// every key exists.
func (store *Store) UpdateSettings(ctx context.Context, pkg string, values map[string]*string, owner settings.Owner) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return store.execTx(ctx, func(s *Store) error {
		ids, err := s.IDsForKeys(ctx, pkg, keys)
		if err != nil {
			return err
		}
		for _, key := range keys {
			if values[key] == nil && owner.Valid {
				if _, err := s.Delete(ctx, ids[key], owner); err != nil {
					return err
				}
				continue
			}
			if err := s.Update(ctx, ids[key], values[key], owner); err != nil {
				return err
			}
		}
		return nil
	})
}

func (store *Store) SettingsGroups(ctx context.Context, skip []string, packages []string) ([]settings.Group, error) {
	items, err := store.ListSettingNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list setting names: %w", err)
	}
	keys := make([]settings.SettingKey, len(items))
	for i, item := range items {
		keys[i] = settings.SettingKey{Package: item.Package, Name: item.Name}
	}
	return settings.CollectGroups(keys, skip, packages), nil
}

func (store *Store) SettingsForGroup(ctx context.Context, group, pkg string) ([]settings.Row, error) {
	items, err := store.ListGroupSettingsAndValues(ctx, ListGroupSettingsAndValuesParams{
		Package: pkg,
		Pattern: settings.GroupPattern(group),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list settings of group %q: %w", group, err)
	}
	return toRows(items), nil
}

func toRows(items []SettingAndValueRow) []settings.Row {
	rows := make([]settings.Row, len(items))
	for i, item := range items {
		owner := settings.NoIdentity
		if item.IdentityID != nil {
			owner = settings.IdentityOwner(*item.IdentityID)
		}
		rows[i] = settings.Row{
			SettingID:          item.ID,
			Package:            item.Package,
			Name:               item.Name,
			DefaultValue:       item.DefaultValue,
			OverridesPermitted: item.OverridesPermitted,
			ValueID:            item.ValueID,
			Value:              item.Value,
			Owner:              owner,
		}
	}
	return rows
}
