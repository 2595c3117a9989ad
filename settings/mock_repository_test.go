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

package settings

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

type mockSetting struct {
	id                 int64
	pkg                string
	name               string
	defaultValue       *string
	overridesPermitted bool
}

type mockValue struct {
	id        int64
	settingID int64
	value     *string
	owner     Owner
}

// mockRepository is an in-memory Repository that records every write.
type mockRepository struct {
	mu       sync.Mutex
	settings []mockSetting
	values   []mockValue
	nextID   int64
	calls    []string

	loadCalls atomic.Int32
	loadErr   error
	// failOn makes the first write whose log line has this prefix fail.
	failOn string
}

func newMockRepository() *mockRepository {
	return &mockRepository{nextID: 100}
}

func (m *mockRepository) addSetting(pkg, name string, def *string, overridable bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.settings = append(m.settings, mockSetting{
		id:                 m.nextID,
		pkg:                pkg,
		name:               name,
		defaultValue:       def,
		overridesPermitted: overridable,
	})
	return m.nextID
}

func (m *mockRepository) addValue(settingID int64, value *string, owner Owner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.values = append(m.values, mockValue{id: m.nextID, settingID: settingID, value: value, owner: owner})
}

func (m *mockRepository) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRepository) resetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// record must be called with m.mu held.
func (m *mockRepository) record(format string, args ...any) error {
	call := fmt.Sprintf(format, args...)
	if m.failOn != "" && strings.HasPrefix(call, m.failOn) {
		m.failOn = ""
		return fmt.Errorf("injected failure on %s", call)
	}
	m.calls = append(m.calls, call)
	return nil
}

func (m *mockRepository) AllSettingsAndValues(_ context.Context) ([]Row, error) {
	m.loadCalls.Add(1)
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var rows []Row
	for _, s := range m.settings {
		found := false
		for _, v := range m.values {
			if v.settingID != s.id {
				continue
			}
			found = true
			id := v.id
			rows = append(rows, Row{
				SettingID:          s.id,
				Package:            s.pkg,
				Name:               s.name,
				DefaultValue:       s.defaultValue,
				OverridesPermitted: s.overridesPermitted,
				ValueID:            &id,
				Value:              v.value,
				Owner:              v.owner,
			})
		}
		if !found {
			rows = append(rows, Row{
				SettingID:          s.id,
				Package:            s.pkg,
				Name:               s.name,
				DefaultValue:       s.defaultValue,
				OverridesPermitted: s.overridesPermitted,
			})
		}
	}
	return rows, nil
}

func (m *mockRepository) IDsForKeys(_ context.Context, pkg string, keys []string) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := map[string]int64{}
	for _, s := range m.settings {
		if s.pkg == pkg {
			found[s.name] = s.id
		}
	}
	if err := CheckKeys(pkg, keys, found); err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		out[k] = found[k]
	}
	return out, nil
}

func (m *mockRepository) Update(_ context.Context, settingID int64, value *string, owner Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := "<nil>"
	if value != nil {
		v = *value
	}
	if err := m.record("update %d %s %s", settingID, owner, v); err != nil {
		return err
	}
	for i := range m.values {
		if m.values[i].settingID == settingID && m.values[i].owner == owner {
			m.values[i].value = cloneString(value)
			return nil
		}
	}
	m.nextID++
	m.values = append(m.values, mockValue{id: m.nextID, settingID: settingID, value: cloneString(value), owner: owner})
	return nil
}

func (m *mockRepository) Delete(_ context.Context, settingID int64, owner Owner) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete %d %s", settingID, owner); err != nil {
		return false, err
	}
	for i := range m.values {
		if m.values[i].settingID == settingID && m.values[i].owner == owner {
			m.values = append(m.values[:i], m.values[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) DeleteSetting(_ context.Context, settingID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete_setting %d", settingID); err != nil {
		return false, err
	}
	kept := m.values[:0]
	for _, v := range m.values {
		if v.settingID != settingID {
			kept = append(kept, v)
		}
	}
	m.values = kept
	for i := range m.settings {
		if m.settings[i].id == settingID {
			m.settings = append(m.settings[:i], m.settings[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *mockRepository) Create(_ context.Context, pkg, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("create %s::%s", pkg, name); err != nil {
		return 0, err
	}
	m.nextID++
	m.settings = append(m.settings, mockSetting{id: m.nextID, pkg: pkg, name: name, overridesPermitted: true})
	return m.nextID, nil
}

func (m *mockRepository) CreateMany(ctx context.Context, pkg string, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	for _, name := range names {
		id, err := m.Create(ctx, pkg, name)
		if err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, nil
}

func (m *mockRepository) UpdateSettings(ctx context.Context, pkg string, values map[string]*string, owner Owner) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ids, err := m.IDsForKeys(ctx, pkg, keys)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if values[k] == nil && owner.Valid {
			if _, err := m.Delete(ctx, ids[k], owner); err != nil {
				return err
			}
			continue
		}
		if err := m.Update(ctx, ids[k], values[k], owner); err != nil {
			return err
		}
	}
	return nil
}

func (m *mockRepository) SettingsGroups(_ context.Context, skip []string, packages []string) ([]Group, error) {
	return nil, nil
}

func (m *mockRepository) SettingsForGroup(_ context.Context, group, pkg string) ([]Row, error) {
	return nil, nil
}

var _ Repository = (*mockRepository)(nil)
