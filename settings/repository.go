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

import "context"

// Repository defines the persistence operations the settings Store depends on.
type Repository interface {
	// AllSettingsAndValues returns every setting joined with every value row,
	// unfiltered. Filtering by identity happens in the Store.
	AllSettingsAndValues(ctx context.Context) ([]Row, error)

	// IDsForKeys maps setting names in pkg to their ids. It returns an
	// *InconsistencyError naming every key with no stored setting.
	IDsForKeys(ctx context.Context, pkg string, keys []string) (map[string]int64, error)

	// Update upserts the value row for (settingID, owner).
	Update(ctx context.Context, settingID int64, value *string, owner Owner) error

	// Delete removes the value row for (settingID, owner).
	Delete(ctx context.Context, settingID int64, owner Owner) (bool, error)

	// DeleteSetting removes a setting together with all of its value rows.
	DeleteSetting(ctx context.Context, settingID int64) (bool, error)

	// Create inserts a setting row. Value rows are written separately via Update.
	Create(ctx context.Context, pkg, name string) (int64, error)

	// CreateMany inserts several setting rows in one package.
	CreateMany(ctx context.Context, pkg string, names []string) (map[string]int64, error)

	// UpdateSettings writes a batch of values for one owner. The whole batch
	// fails before any write if a key is missing from storage. For an identity
	// owner a nil value removes the override.
	UpdateSettings(ctx context.Context, pkg string, values map[string]*string, owner Owner) error

	// SettingsGroups lists the groups of settings, skipping group prefixes in
	// skip and, when packages is not empty, restricted to those packages.
	SettingsGroups(ctx context.Context, skip []string, packages []string) ([]Group, error)

	// SettingsForGroup returns the rows of settings named "group.*" in pkg.
	SettingsForGroup(ctx context.Context, group, pkg string) ([]Row, error)
}

// IdentityProvider resolves the identity the Store acts on behalf of.
// It returns NoIdentity when nobody is authenticated.
type IdentityProvider interface {
	Identity(ctx context.Context) (Owner, error)
}

// IdentityFunc adapts a function to IdentityProvider.
type IdentityFunc func(ctx context.Context) (Owner, error)

func (f IdentityFunc) Identity(ctx context.Context) (Owner, error) {
	return f(ctx)
}

// StaticIdentity always resolves to the same owner.
func StaticIdentity(owner Owner) IdentityProvider {
	return IdentityFunc(func(context.Context) (Owner, error) {
		return owner, nil
	})
}
