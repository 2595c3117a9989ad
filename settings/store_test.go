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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("default tier value", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Foo", nil, true)
		repo.addValue(id, StringPtr("Bar"), NoIdentity)

		s := New(repo, nil)
		v, err := s.Get(ctx, "Foo", nil)
		require.NoError(t, err)
		assert.Equal(t, "Bar", v)
	})

	t.Run("missing key returns caller default", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Foo", nil, true)
		repo.addValue(id, StringPtr("Bar"), NoIdentity)

		s := New(repo, nil)
		v, err := s.Get(ctx, "Hello", "World")
		require.NoError(t, err)
		assert.Equal(t, "World", v)
	})

	t.Run("null value falls back to setting default", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Planet", StringPtr("Earth"), true)
		repo.addValue(id, nil, NoIdentity)

		s := New(repo, nil)
		v, err := s.Get(ctx, "Planet", nil)
		require.NoError(t, err)
		assert.Equal(t, "Earth", v)

		v, err = s.Get(ctx, "Planet", "Mars")
		require.NoError(t, err)
		assert.Equal(t, "Earth", v)
	})

	t.Run("no value anywhere returns caller default", func(t *testing.T) {
		repo := newMockRepository()
		repo.addSetting(DefaultPackage, "Empty", nil, true)

		s := New(repo, nil)
		v, err := s.Get(ctx, "Empty", "fallback")
		require.NoError(t, err)
		assert.Equal(t, "fallback", v)

		has, err := s.Has(ctx, "Empty")
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("default only setting ignores override flag", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Foo", nil, true)
		repo.addValue(id, StringPtr("Bar"), NoIdentity)

		s := New(repo, StaticIdentity(IdentityOwner(7)))
		withOverride, err := s.Get(ctx, "Foo", nil, WithOverride(true))
		require.NoError(t, err)
		without, err := s.Get(ctx, "Foo", nil, WithOverride(false))
		require.NoError(t, err)
		assert.Equal(t, withOverride, without)
	})

	t.Run("override wins only when requested", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Theme", nil, true)
		repo.addValue(id, StringPtr("light"), NoIdentity)
		repo.addValue(id, StringPtr("dark"), IdentityOwner(7))

		s := New(repo, StaticIdentity(IdentityOwner(7)))
		v, err := s.Get(ctx, "Theme", nil)
		require.NoError(t, err)
		assert.Equal(t, "dark", v)

		v, err = s.Get(ctx, "Theme", nil, WithOverride(false))
		require.NoError(t, err)
		assert.Equal(t, "light", v)
	})

	t.Run("other identities are discarded", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Theme", nil, true)
		repo.addValue(id, StringPtr("light"), NoIdentity)
		repo.addValue(id, StringPtr("dark"), IdentityOwner(8))

		s := New(repo, StaticIdentity(IdentityOwner(7)))
		v, err := s.Get(ctx, "Theme", nil)
		require.NoError(t, err)
		assert.Equal(t, "light", v)

		anon := New(repo, nil)
		v, err = anon.Get(ctx, "Theme", nil)
		require.NoError(t, err)
		assert.Equal(t, "light", v)
	})

	t.Run("override of non overridable setting is excluded", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Locked", nil, false)
		repo.addValue(id, StringPtr("global"), NoIdentity)
		repo.addValue(id, StringPtr("mine"), IdentityOwner(7))

		s := New(repo, StaticIdentity(IdentityOwner(7)))
		v, err := s.Get(ctx, "Locked", nil)
		require.NoError(t, err)
		assert.Equal(t, "global", v)
	})

	t.Run("null override falls back to default tier", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Theme", nil, true)
		repo.addValue(id, StringPtr("light"), NoIdentity)
		repo.addValue(id, nil, IdentityOwner(7))

		s := New(repo, StaticIdentity(IdentityOwner(7)))
		v, err := s.Get(ctx, "Theme", nil)
		require.NoError(t, err)
		assert.Equal(t, "light", v)
	})

	t.Run("package selection", func(t *testing.T) {
		repo := newMockRepository()
		a := repo.addSetting("acme/forum", "Foo", nil, true)
		repo.addValue(a, StringPtr("forum"), NoIdentity)
		b := repo.addSetting(DefaultPackage, "Foo", nil, true)
		repo.addValue(b, StringPtr("core"), NoIdentity)

		s := New(repo, nil)
		v, err := s.Get(ctx, "Foo", nil, WithPackage("acme/forum"))
		require.NoError(t, err)
		assert.Equal(t, "forum", v)

		v, err = s.Get(ctx, "Foo", nil)
		require.NoError(t, err)
		assert.Equal(t, "core", v)

		custom := New(repo, nil, WithDefaultPackage("acme/forum"))
		v, err = custom.Get(ctx, "Foo", nil)
		require.NoError(t, err)
		assert.Equal(t, "forum", v)
	})
}

func TestStore_GetCoercion(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	for name, value := range map[string]string{
		"count":   "42",
		"enabled": "1",
		"ratio":   "0.25",
		"timeout": "1m30s",
		"tags":    "a, b,c",
		"bogus":   "not-a-number",
	} {
		id := repo.addSetting(DefaultPackage, name, nil, true)
		repo.addValue(id, StringPtr(value), NoIdentity)
	}

	s := New(repo, nil)

	n, err := GetAs(ctx, s, "count", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	b, err := GetAs(ctx, s, "enabled", false)
	require.NoError(t, err)
	assert.True(t, b)

	f, err := GetAs(ctx, s, "ratio", 0.0)
	require.NoError(t, err)
	assert.InDelta(t, 0.25, f, 1e-9)

	d, err := GetAs(ctx, s, "timeout", time.Second)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	tags, err := GetAs(ctx, s, "tags", []string{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tags)

	bogus, err := GetAs(ctx, s, "bogus", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, bogus)

	missing, err := GetAs(ctx, s, "missing", 5)
	require.NoError(t, err)
	assert.Equal(t, 5, missing)
}

func TestStore_Lookup(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	id := repo.addSetting("acme/forum", "title", nil, true)
	repo.addValue(id, StringPtr("Forum"), NoIdentity)
	repo.addValue(id, StringPtr("My Forum"), IdentityOwner(3))
	core := repo.addSetting(DefaultPackage, "title", nil, true)
	repo.addValue(core, StringPtr("Core"), NoIdentity)

	s := New(repo, StaticIdentity(IdentityOwner(3)))

	v, err := s.Lookup(ctx, "acme/forum::title")
	require.NoError(t, err)
	assert.Equal(t, "My Forum", v)

	v, err = s.Lookup(ctx, "title")
	require.NoError(t, err)
	assert.Equal(t, "Core", v)

	v, err = s.Lookup(ctx, "acme/forum::missing")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStore_LoadsOnce(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	id := repo.addSetting(DefaultPackage, "Foo", nil, true)
	repo.addValue(id, StringPtr("Bar"), NoIdentity)

	s := New(repo, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Get(ctx, "Foo", nil)
			assert.NoError(t, err)
			assert.Equal(t, "Bar", v)
		}()
	}
	wg.Wait()

	_, err := s.Has(ctx, "Foo")
	require.NoError(t, err)
	assert.Equal(t, int32(1), repo.loadCalls.Load())
}

func TestStore_FailedLoadRetries(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	id := repo.addSetting(DefaultPackage, "Foo", nil, true)
	repo.addValue(id, StringPtr("Bar"), NoIdentity)
	repo.loadErr = errors.New("connection refused")

	s := New(repo, nil)
	_, err := s.Get(ctx, "Foo", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, repo.loadErr)

	repo.loadErr = nil
	v, err := s.Get(ctx, "Foo", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bar", v)
	assert.Equal(t, int32(2), repo.loadCalls.Load())
}

func TestStore_IdentityErrorPropagates(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("session expired")
	s := New(newMockRepository(), IdentityFunc(func(context.Context) (Owner, error) {
		return NoIdentity, boom
	}))

	_, err := s.Get(ctx, "Foo", nil)
	assert.ErrorIs(t, err, boom)
}

func TestStore_SetIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	id := repo.addSetting(DefaultPackage, "Foo", nil, true)
	repo.addValue(id, StringPtr("Bar"), NoIdentity)

	t.Run("same value as stored is a no-op", func(t *testing.T) {
		s := New(repo, nil)
		require.NoError(t, s.Set(ctx, "Foo", "Bar"))
		assert.False(t, s.Dirty())

		saved, err := s.Save(ctx)
		require.NoError(t, err)
		assert.False(t, saved)
		assert.Empty(t, repo.callLog())
	})

	t.Run("setting twice writes once", func(t *testing.T) {
		repo.resetCalls()
		s := New(repo, nil)
		require.NoError(t, s.Set(ctx, "Foo", "Baz"))
		require.NoError(t, s.Set(ctx, "Foo", "Baz"))
		assert.True(t, s.Dirty())

		saved, err := s.Save(ctx)
		require.NoError(t, err)
		assert.True(t, saved)
		assert.Equal(t, []string{fmt.Sprintf("update %d none Baz", id)}, repo.callLog())
		assert.False(t, s.Dirty())
	})
}

func TestStore_SetNewSetting(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	s := New(repo, nil)

	require.NoError(t, s.Set(ctx, "NewThing", 12))
	v, err := s.Get(ctx, "NewThing", nil)
	require.NoError(t, err)
	assert.Equal(t, "12", v)

	saved, err := s.Save(ctx)
	require.NoError(t, err)
	assert.True(t, saved)

	calls := repo.callLog()
	require.Len(t, calls, 2)
	assert.Equal(t, "create mybb/core::NewThing", calls[0])
	assert.Regexp(t, `^update \d+ none 12$`, calls[1])

	all, err := s.All(ctx)
	require.NoError(t, err)
	entry := all[DefaultPackage]["NewThing"]
	assert.NotZero(t, entry.SettingID)
	assert.True(t, entry.OverridesPermitted)

	// The created id is used by later writes from the same Store.
	repo.resetCalls()
	require.NoError(t, s.Set(ctx, "NewThing", 13))
	_, err = s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{fmt.Sprintf("update %d none 13", entry.SettingID)}, repo.callLog())

	reloaded := New(repo, nil)
	n, err := GetAs(ctx, reloaded, "NewThing", 0)
	require.NoError(t, err)
	assert.Equal(t, 13, n)
}

func TestStore_SetOverride(t *testing.T) {
	ctx := context.Background()

	t.Run("creates override for identity", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Theme", nil, true)
		repo.addValue(id, StringPtr("light"), NoIdentity)

		s := New(repo, StaticIdentity(IdentityOwner(9)))
		require.NoError(t, s.Set(ctx, "Theme", "dark", WithOverride(true)))

		v, err := s.Get(ctx, "Theme", nil)
		require.NoError(t, err)
		assert.Equal(t, "dark", v)

		_, err = s.Save(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{fmt.Sprintf("update %d 9 dark", id)}, repo.callLog())

		other := New(repo, StaticIdentity(IdentityOwner(10)))
		v, err = other.Get(ctx, "Theme", nil)
		require.NoError(t, err)
		assert.Equal(t, "light", v)
	})

	t.Run("not permitted", func(t *testing.T) {
		repo := newMockRepository()
		repo.addSetting(DefaultPackage, "Locked", StringPtr("x"), false)

		s := New(repo, StaticIdentity(IdentityOwner(9)))
		err := s.Set(ctx, "Locked", "y", WithOverride(true))
		require.ErrorIs(t, err, ErrOverrideNotPermitted)
		assert.False(t, s.Dirty())
	})

	t.Run("skipped without identity", func(t *testing.T) {
		repo := newMockRepository()
		repo.addSetting(DefaultPackage, "Theme", nil, true)

		s := New(repo, nil)
		require.NoError(t, s.Set(ctx, "Theme", "dark", WithOverride(true)))
		saved, err := s.Save(ctx)
		require.NoError(t, err)
		assert.True(t, saved)
		assert.Empty(t, repo.callLog())
	})
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("missing key is a no-op", func(t *testing.T) {
		s := New(newMockRepository(), nil)
		require.NoError(t, s.Delete(ctx, "nope"))
		assert.False(t, s.Dirty())
	})

	t.Run("whole setting", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Foo", nil, true)
		repo.addValue(id, StringPtr("Bar"), NoIdentity)

		s := New(repo, nil)
		require.NoError(t, s.Delete(ctx, "Foo"))
		has, err := s.Has(ctx, "Foo")
		require.NoError(t, err)
		assert.False(t, has)

		_, err = s.Save(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{fmt.Sprintf("delete_setting %d", id)}, repo.callLog())

		has, err = New(repo, nil).Has(ctx, "Foo")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("override only", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Theme", nil, true)
		repo.addValue(id, StringPtr("light"), NoIdentity)
		repo.addValue(id, StringPtr("dark"), IdentityOwner(4))

		s := New(repo, StaticIdentity(IdentityOwner(4)))
		require.NoError(t, s.Delete(ctx, "Theme", WithOverride(true)))
		v, err := s.Get(ctx, "Theme", nil)
		require.NoError(t, err)
		assert.Equal(t, "light", v)

		_, err = s.Save(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{fmt.Sprintf("delete %d 4", id)}, repo.callLog())
	})

	t.Run("nil value deletes", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Foo", nil, true)
		repo.addValue(id, StringPtr("Bar"), NoIdentity)

		s := New(repo, nil)
		require.NoError(t, s.Set(ctx, "Foo", nil))
		has, err := s.Has(ctx, "Foo")
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("unsaved setting leaves no trace", func(t *testing.T) {
		repo := newMockRepository()
		s := New(repo, nil)
		require.NoError(t, s.Set(ctx, "Temp", "x"))
		require.NoError(t, s.Delete(ctx, "Temp"))

		saved, err := s.Save(ctx)
		require.NoError(t, err)
		assert.True(t, saved)
		assert.Empty(t, repo.callLog())
	})

	t.Run("delete then set again replaces the setting", func(t *testing.T) {
		repo := newMockRepository()
		id := repo.addSetting(DefaultPackage, "Foo", StringPtr("old default"), false)
		repo.addValue(id, StringPtr("Bar"), NoIdentity)

		s := New(repo, nil)
		require.NoError(t, s.Delete(ctx, "Foo"))
		require.NoError(t, s.Set(ctx, "Foo", "Fresh"))

		_, err := s.Save(ctx)
		require.NoError(t, err)
		calls := repo.callLog()
		require.Len(t, calls, 3)
		assert.Equal(t, fmt.Sprintf("delete_setting %d", id), calls[0])
		assert.Equal(t, "create mybb/core::Foo", calls[1])
		assert.Regexp(t, `^update \d+ none Fresh$`, calls[2])

		v, err := New(repo, nil).Get(ctx, "Foo", nil)
		require.NoError(t, err)
		assert.Equal(t, "Fresh", v)
	})
}

func TestStore_SaveOrder(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	gone := repo.addSetting(DefaultPackage, "Gone", nil, true)
	kept := repo.addSetting(DefaultPackage, "Kept", nil, true)
	repo.addValue(kept, StringPtr("1"), NoIdentity)

	s := New(repo, nil)
	require.NoError(t, s.Delete(ctx, "Gone"))
	require.NoError(t, s.Set(ctx, "Kept", 2))
	require.NoError(t, s.Set(ctx, "Added", true))

	_, err := s.Save(ctx)
	require.NoError(t, err)

	calls := repo.callLog()
	require.Len(t, calls, 4)
	assert.Equal(t, "create mybb/core::Added", calls[0])
	assert.Regexp(t, `^update \d+ none 1$`, calls[1])
	assert.Equal(t, fmt.Sprintf("update %d none 2", kept), calls[2])
	assert.Equal(t, fmt.Sprintf("delete_setting %d", gone), calls[3])
}

func TestStore_FailedSaveKeepsRemainder(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	a := repo.addSetting(DefaultPackage, "A", nil, true)
	b := repo.addSetting(DefaultPackage, "B", nil, true)
	repo.addValue(a, StringPtr("a0"), NoIdentity)
	repo.addValue(b, StringPtr("b0"), NoIdentity)

	s := New(repo, nil)
	require.NoError(t, s.SetMany(ctx, map[string]any{"A": "a1", "B": "b1"}))

	repo.failOn = fmt.Sprintf("update %d", b)
	saved, err := s.Save(ctx)
	require.Error(t, err)
	assert.False(t, saved)
	assert.True(t, s.Dirty())
	assert.Equal(t, []string{fmt.Sprintf("update %d none a1", a)}, repo.callLog())

	repo.resetCalls()
	saved, err = s.Save(ctx)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, []string{fmt.Sprintf("update %d none b1", b)}, repo.callLog())
}

func TestStore_All(t *testing.T) {
	ctx := context.Background()
	repo := newMockRepository()
	id := repo.addSetting(DefaultPackage, "Foo", StringPtr("d"), true)
	repo.addValue(id, StringPtr("Bar"), NoIdentity)
	repo.addValue(id, StringPtr("Mine"), IdentityOwner(2))

	s := New(repo, StaticIdentity(IdentityOwner(2)))
	all, err := s.All(ctx)
	require.NoError(t, err)

	entry := all[DefaultPackage]["Foo"]
	assert.Equal(t, id, entry.SettingID)
	require.NotNil(t, entry.Override)
	assert.Equal(t, "Mine", *entry.Override)

	*entry.Value = "mutated"
	v, err := s.Get(ctx, "Foo", nil, WithOverride(false))
	require.NoError(t, err)
	assert.Equal(t, "Bar", v)
}
