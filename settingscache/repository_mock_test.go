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

package settingscache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/cardinalhq/settingstore/settings"
)

// countingRepository keeps settings in memory and counts rowset loads.
type countingRepository struct {
	mu     sync.Mutex
	rows   []settings.Row
	nextID int64

	loads    atomic.Int32
	writeErr error
	// blockLoad, when set, is received from before a load returns.
	blockLoad chan struct{}
}

func newCountingRepository() *countingRepository {
	return &countingRepository{nextID: 1}
}

func (r *countingRepository) AllSettingsAndValues(_ context.Context) ([]settings.Row, error) {
	r.loads.Add(1)
	r.mu.Lock()
	rows := append([]settings.Row(nil), r.rows...)
	block := r.blockLoad
	r.mu.Unlock()
	if block != nil {
		<-block
	}
	return rows, nil
}

func (r *countingRepository) IDsForKeys(_ context.Context, pkg string, keys []string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := map[string]int64{}
	for _, row := range r.rows {
		if row.Package == pkg {
			found[row.Name] = row.SettingID
		}
	}
	if err := settings.CheckKeys(pkg, keys, found); err != nil {
		return nil, err
	}
	return found, nil
}

func (r *countingRepository) Update(_ context.Context, settingID int64, value *string, owner settings.Owner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return r.writeErr
	}
	for i := range r.rows {
		if r.rows[i].SettingID == settingID && r.rows[i].Owner == owner {
			r.rows[i].Value = value
			return nil
		}
	}
	for _, row := range r.rows {
		if row.SettingID == settingID {
			row.Value = value
			row.Owner = owner
			r.rows = append(r.rows, row)
			return nil
		}
	}
	return errors.New("no such setting")
}

func (r *countingRepository) Delete(_ context.Context, settingID int64, owner settings.Owner) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return false, r.writeErr
	}
	for i := range r.rows {
		if r.rows[i].SettingID == settingID && r.rows[i].Owner == owner {
			r.rows = append(r.rows[:i], r.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (r *countingRepository) DeleteSetting(_ context.Context, settingID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return false, r.writeErr
	}
	kept := r.rows[:0]
	for _, row := range r.rows {
		if row.SettingID != settingID {
			kept = append(kept, row)
		}
	}
	deleted := len(kept) != len(r.rows)
	r.rows = kept
	return deleted, nil
}

func (r *countingRepository) Create(_ context.Context, pkg, name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writeErr != nil {
		return 0, r.writeErr
	}
	r.nextID++
	r.rows = append(r.rows, settings.Row{
		SettingID:          r.nextID,
		Package:            pkg,
		Name:               name,
		OverridesPermitted: true,
	})
	return r.nextID, nil
}

func (r *countingRepository) CreateMany(ctx context.Context, pkg string, names []string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, name := range names {
		id, err := r.Create(ctx, pkg, name)
		if err != nil {
			return nil, err
		}
		out[name] = id
	}
	return out, nil
}

func (r *countingRepository) UpdateSettings(ctx context.Context, pkg string, values map[string]*string, owner settings.Owner) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	ids, err := r.IDsForKeys(ctx, pkg, keys)
	if err != nil {
		return err
	}
	for k, v := range values {
		if err := r.Update(ctx, ids[k], v, owner); err != nil {
			return err
		}
	}
	return nil
}

func (r *countingRepository) SettingsGroups(_ context.Context, _ []string, _ []string) ([]settings.Group, error) {
	return nil, nil
}

func (r *countingRepository) SettingsForGroup(_ context.Context, _ string, _ string) ([]settings.Row, error) {
	return nil, nil
}
