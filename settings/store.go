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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// entryState is an Entry plus what the Store knows about its stored rows.
type entryState struct {
	Entry
	settingStored  bool
	valueStored    bool
	overrideStored bool
}

func (st *entryState) tierValue(tier Tier) (present bool, value *string) {
	if tier == TierOverride {
		return st.HasOverride, st.Override
	}
	return st.HasValue, st.Value
}

func (st *entryState) assign(tier Tier, value string) {
	if tier == TierOverride {
		st.HasOverride = true
		st.Override = StringPtr(value)
		return
	}
	st.HasValue = true
	st.Value = StringPtr(value)
}

// Store is the request-scoped, lazily loaded view of all settings.
// A Store is safe for concurrent use, but is meant to live for one unit of
// work and be discarded after Save.
type Store struct {
	repo           Repository
	identity       IdentityProvider
	defaultPackage string

	mu      sync.Mutex
	loaded  bool
	owner   Owner
	entries map[string]map[string]*entryState
	// removed remembers stored settings deleted in this session, so that
	// setting the same key again replaces the old row.
	removed map[entryKey]int64
	pending []*intent
	dirty   bool
}

// New returns an unloaded Store backed by repo. A nil identity provider
// means the Store never sees identity overrides.
func New(repo Repository, identity IdentityProvider, opts ...StoreOption) *Store {
	if identity == nil {
		identity = StaticIdentity(NoIdentity)
	}
	s := &Store{
		repo:           repo,
		identity:       identity,
		defaultPackage: DefaultPackage,
		removed:        map[entryKey]int64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultPackageName returns the package used when callers do not name one.
func (s *Store) DefaultPackageName() string {
	return s.defaultPackage
}

// ensureLoaded must be called with s.mu held.
func (s *Store) ensureLoaded(ctx context.Context) error {
	if s.loaded {
		return nil
	}

	owner, err := s.identity.Identity(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve identity: %w", err)
	}

	rows, err := s.repo.AllSettingsAndValues(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	s.entries = merge(rows, owner)
	s.owner = owner
	s.loaded = true

	slog.Debug("Loaded settings",
		slog.Int("rows", len(rows)),
		slog.Int("packages", len(s.entries)),
		slog.String("identity", owner.String()))
	return nil
}

// merge builds the per-identity view. Default-tier rows and rows owned by the
// current identity are kept; overrides of settings that do not permit them
// and rows of other identities are discarded.
func merge(rows []Row, owner Owner) map[string]map[string]*entryState {
	entries := map[string]map[string]*entryState{}
	for _, row := range rows {
		names, ok := entries[row.Package]
		if !ok {
			names = map[string]*entryState{}
			entries[row.Package] = names
		}
		st, ok := names[row.Name]
		if !ok {
			st = &entryState{
				Entry: Entry{
					SettingID:          row.SettingID,
					Package:            row.Package,
					Name:               row.Name,
					DefaultValue:       cloneString(row.DefaultValue),
					OverridesPermitted: row.OverridesPermitted,
				},
				settingStored: true,
			}
			names[row.Name] = st
		}

		if row.ValueID == nil && row.Value == nil {
			continue
		}

		switch {
		case !row.Owner.Valid:
			st.HasValue = true
			st.Value = cloneString(row.Value)
			st.valueStored = true
		case owner.Valid && row.Owner.IdentityID == owner.IdentityID && row.OverridesPermitted:
			st.HasOverride = true
			st.Override = cloneString(row.Value)
			st.overrideStored = true
		}
	}
	return entries
}

func (s *Store) lookup(key entryKey) *entryState {
	if names, ok := s.entries[key.pkg]; ok {
		return names[key.name]
	}
	return nil
}

func (s *Store) put(st *entryState) {
	names, ok := s.entries[st.Package]
	if !ok {
		names = map[string]*entryState{}
		s.entries[st.Package] = names
	}
	names[st.Name] = st
}

func (s *Store) remove(key entryKey) {
	names, ok := s.entries[key.pkg]
	if !ok {
		return
	}
	delete(names, key.name)
	if len(names) == 0 {
		delete(s.entries, key.pkg)
	}
}

// Get returns the effective value of key, or def when the setting does not
// exist or has no value. When def is not nil the stored string is coerced to
// def's type; a value that cannot be coerced yields the zero value of that type.
func (s *Store) Get(ctx context.Context, key string, def any, opts ...Option) (any, error) {
	o := s.readOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	st := s.lookup(entryKey{pkg: o.pkg, name: key})
	if st == nil {
		return def, nil
	}

	raw := st.Resolve(o.useOverride)
	if raw == nil {
		return def, nil
	}
	if def == nil {
		return *raw, nil
	}

	v, ok := coerce(*raw, def)
	if !ok {
		slog.Debug("Setting value could not be coerced",
			slog.String("package", o.pkg),
			slog.String("name", key),
			slog.String("type", fmt.Sprintf("%T", def)))
	}
	return v, nil
}

// GetAs is the typed form of Store.Get.
func GetAs[T any](ctx context.Context, s *Store, key string, def T, opts ...Option) (T, error) {
	v, err := s.Get(ctx, key, def, opts...)
	if err != nil {
		return def, err
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	return def, nil
}

// Lookup reads a setting by its "package::name" reference, considering
// identity overrides. A reference without a package uses the default package.
func (s *Store) Lookup(ctx context.Context, ref string) (any, error) {
	pkg, name, ok := strings.Cut(ref, "::")
	if !ok {
		return s.Get(ctx, ref, nil)
	}
	return s.Get(ctx, name, nil, WithPackage(pkg), WithOverride(true))
}

// Has reports whether the setting exists, whatever tiers carry values.
func (s *Store) Has(ctx context.Context, key string, opts ...Option) (bool, error) {
	o := s.readOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return false, err
	}
	return s.lookup(entryKey{pkg: o.pkg, name: key}) != nil, nil
}

// Set records a new value for key. The default tier is written unless
// WithOverride(true) is given. A nil value deletes the targeted tier the same
// way Delete does.
func (s *Store) Set(ctx context.Context, key string, value any, opts ...Option) error {
	o := s.writeOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	return s.set(o, key, value)
}

// SetMany calls Set once per entry of values, in key order.
func (s *Store) SetMany(ctx context.Context, values map[string]any, opts ...Option) error {
	o := s.writeOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := s.set(o, k, values[k]); err != nil {
			return fmt.Errorf("failed to set %q: %w", k, err)
		}
	}
	return nil
}

func (s *Store) set(o callOptions, name string, value any) error {
	if value == nil {
		s.delete(o, name)
		return nil
	}

	str, err := stringify(value)
	if err != nil {
		return err
	}

	tier := TierDefault
	if o.useOverride {
		tier = TierOverride
	}
	key := entryKey{pkg: o.pkg, name: name}

	st := s.lookup(key)
	if st == nil {
		st = &entryState{
			Entry: Entry{
				Package:            o.pkg,
				Name:               name,
				OverridesPermitted: true,
			},
		}
		s.put(st)

		replaces := s.removed[key]
		delete(s.removed, key)
		s.dropIntents(key, func(in *intent) bool { return in.kind == intentDeleteSetting })
		s.pending = append(s.pending, &intent{kind: intentCreateSetting, key: key, replaces: replaces})

		st.assign(tier, str)
		s.recordValueWrite(key, tier, intentCreateValue, 0, str)
		s.dirty = true
		return nil
	}

	if tier == TierOverride && !st.OverridesPermitted {
		return fmt.Errorf("%s::%s: %w", o.pkg, name, ErrOverrideNotPermitted)
	}

	present, current := st.tierValue(tier)
	if present && equalStrings(current, &str) {
		return nil
	}

	kind := intentUpdate
	if !present {
		kind = intentCreateValue
	}
	st.assign(tier, str)
	s.recordValueWrite(key, tier, kind, st.SettingID, str)
	s.dirty = true
	return nil
}

// Delete removes key. With WithOverride(true) only the current identity's
// override is removed; otherwise the whole setting and all of its values are.
// Deleting a missing setting does nothing.
func (s *Store) Delete(ctx context.Context, key string, opts ...Option) error {
	o := s.writeOptions(opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return err
	}
	s.delete(o, key)
	return nil
}

func (s *Store) delete(o callOptions, name string) {
	key := entryKey{pkg: o.pkg, name: name}
	st := s.lookup(key)
	if st == nil {
		return
	}

	if o.useOverride {
		if !st.HasOverride {
			return
		}
		stored := st.overrideStored
		st.HasOverride = false
		st.Override = nil
		st.overrideStored = false
		s.dropIntents(key, func(in *intent) bool {
			return in.tier == TierOverride && (in.kind == intentCreateValue || in.kind == intentUpdate)
		})
		if stored {
			s.pending = append(s.pending, &intent{
				kind:      intentDeleteValue,
				key:       key,
				tier:      TierOverride,
				settingID: st.SettingID,
			})
		}
		s.dirty = true
		return
	}

	stored := st.SettingID
	if !st.settingStored {
		stored = 0
		if in := s.findIntent(key, TierDefault, intentCreateSetting); in != nil {
			stored = in.replaces
		}
	}

	s.remove(key)
	s.dropIntents(key, func(*intent) bool { return true })
	if stored != 0 {
		s.pending = append(s.pending, &intent{kind: intentDeleteSetting, key: key, settingID: stored})
		s.removed[key] = stored
	}
	s.dirty = true
}

// Save writes every pending change through the repository. It returns false
// without touching storage when nothing changed. Settings are created first,
// then values are written, then deletions are applied. When a write fails
// the Store stays dirty and keeps the writes that were not applied.
func (s *Store) Save(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return false, nil
	}

	owner, err := s.identity.Identity(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to resolve identity: %w", err)
	}
	if s.loaded && owner != s.owner {
		slog.Warn("Identity changed between load and save",
			slog.String("loaded", s.owner.String()),
			slog.String("saving", owner.String()))
	}

	applied := map[*intent]bool{}
	defer s.removeApplied(applied)

	for _, kind := range intentKinds {
		for _, in := range s.pending {
			if in.kind != kind {
				continue
			}
			if err := s.apply(ctx, in, owner); err != nil {
				return false, fmt.Errorf("failed to save %s %s::%s: %w", in.kind, in.key.pkg, in.key.name, err)
			}
			applied[in] = true
		}
	}

	s.dirty = false
	slog.Debug("Saved settings",
		slog.Int("writes", len(applied)),
		slog.String("identity", owner.String()))
	return true, nil
}

func (s *Store) apply(ctx context.Context, in *intent, owner Owner) error {
	switch in.kind {
	case intentCreateSetting:
		if in.replaces != 0 {
			if _, err := s.repo.DeleteSetting(ctx, in.replaces); err != nil {
				return err
			}
			in.replaces = 0
		}
		id, err := s.repo.Create(ctx, in.key.pkg, in.key.name)
		if err != nil {
			return err
		}
		if st := s.lookup(in.key); st != nil {
			st.SettingID = id
			st.settingStored = true
		}
		return nil

	case intentCreateValue, intentUpdate:
		st := s.lookup(in.key)
		if st == nil || st.SettingID == 0 {
			return errors.New("setting has no stored id")
		}
		target := NoIdentity
		if in.tier == TierOverride {
			if !owner.Valid {
				slog.Warn("Dropping override write without an identity",
					slog.String("package", in.key.pkg),
					slog.String("name", in.key.name))
				return nil
			}
			target = owner
		}
		if err := s.repo.Update(ctx, st.SettingID, in.value, target); err != nil {
			return err
		}
		if in.tier == TierOverride {
			st.overrideStored = true
		} else {
			st.valueStored = true
		}
		return nil

	case intentDeleteValue:
		if !owner.Valid {
			slog.Warn("Dropping override delete without an identity",
				slog.String("package", in.key.pkg),
				slog.String("name", in.key.name))
			return nil
		}
		_, err := s.repo.Delete(ctx, in.settingID, owner)
		return err

	case intentDeleteSetting:
		if _, err := s.repo.DeleteSetting(ctx, in.settingID); err != nil {
			return err
		}
		delete(s.removed, in.key)
		return nil
	}
	return fmt.Errorf("unknown write %d", in.kind)
}

// All returns a copy of the merged view, keyed by package then name.
func (s *Store) All(ctx context.Context) (map[string]map[string]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]map[string]Entry, len(s.entries))
	for pkg, names := range s.entries {
		m := make(map[string]Entry, len(names))
		for name, st := range names {
			m[name] = st.clone()
		}
		out[pkg] = m
	}
	return out, nil
}

// Dirty reports whether the Store holds changes that have not been saved.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}
