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

	"github.com/cardinalhq/settingstore/settings"
)

// DefaultCacheKey is the key the full rowset is remembered under.
const DefaultCacheKey = "settings.allSettingsAndValues"

// Repository decorates a settings.Repository with a Backend.
type Repository struct {
	inner   settings.Repository
	backend Backend
	key     string
}

var _ settings.Repository = (*Repository)(nil)

// Option configures a Repository.
type Option func(*Repository)

// WithCacheKey changes the key the rowset is remembered under.
func WithCacheKey(key string) Option {
	return func(r *Repository) {
		if key != "" {
			r.key = key
		}
	}
}

// New wraps inner so that AllSettingsAndValues is served from backend.
func New(inner settings.Repository, backend Backend, opts ...Option) *Repository {
	r := &Repository{
		inner:   inner,
		backend: backend,
		key:     DefaultCacheKey,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Decorated returns the wrapped repository.
func (r *Repository) Decorated() settings.Repository {
	return r.inner
}

func (r *Repository) AllSettingsAndValues(ctx context.Context) ([]settings.Row, error) {
	return r.backend.RememberForever(ctx, r.key, r.inner.AllSettingsAndValues)
}

func (r *Repository) IDsForKeys(ctx context.Context, pkg string, keys []string) (map[string]int64, error) {
	return r.inner.IDsForKeys(ctx, pkg, keys)
}

// The write methods forget the rowset even when the inner write fails,
// since a failed write may still have changed storage.

func (r *Repository) Update(ctx context.Context, settingID int64, value *string, owner settings.Owner) error {
	defer r.backend.Forget(r.key)
	return r.inner.Update(ctx, settingID, value, owner)
}

func (r *Repository) Delete(ctx context.Context, settingID int64, owner settings.Owner) (bool, error) {
	defer r.backend.Forget(r.key)
	return r.inner.Delete(ctx, settingID, owner)
}

func (r *Repository) DeleteSetting(ctx context.Context, settingID int64) (bool, error) {
	defer r.backend.Forget(r.key)
	return r.inner.DeleteSetting(ctx, settingID)
}

func (r *Repository) Create(ctx context.Context, pkg, name string) (int64, error) {
	defer r.backend.Forget(r.key)
	return r.inner.Create(ctx, pkg, name)
}

func (r *Repository) CreateMany(ctx context.Context, pkg string, names []string) (map[string]int64, error) {
	defer r.backend.Forget(r.key)
	return r.inner.CreateMany(ctx, pkg, names)
}

func (r *Repository) UpdateSettings(ctx context.Context, pkg string, values map[string]*string, owner settings.Owner) error {
	defer r.backend.Forget(r.key)
	return r.inner.UpdateSettings(ctx, pkg, values, owner)
}

func (r *Repository) SettingsGroups(ctx context.Context, skip []string, packages []string) ([]settings.Group, error) {
	return r.inner.SettingsGroups(ctx, skip, packages)
}

func (r *Repository) SettingsForGroup(ctx context.Context, group, pkg string) ([]settings.Row, error) {
	return r.inner.SettingsForGroup(ctx, group, pkg)
}
