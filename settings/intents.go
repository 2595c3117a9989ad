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

// intentKind orders pending writes. Save applies kinds in ascending order so
// that settings exist before their values are written, and values are written
// before anything is deleted.
type intentKind int

const (
	intentCreateSetting intentKind = iota
	intentCreateValue
	intentUpdate
	intentDeleteValue
	intentDeleteSetting
)

var intentKinds = []intentKind{
	intentCreateSetting,
	intentCreateValue,
	intentUpdate,
	intentDeleteValue,
	intentDeleteSetting,
}

func (k intentKind) String() string {
	switch k {
	case intentCreateSetting:
		return "create_setting"
	case intentCreateValue:
		return "create_value"
	case intentUpdate:
		return "update"
	case intentDeleteValue:
		return "delete_value"
	case intentDeleteSetting:
		return "delete_setting"
	default:
		return "unknown"
	}
}

type entryKey struct {
	pkg  string
	name string
}

// intent is one pending write. settingID is zero while the setting only exists
// in memory; it is resolved from the merged entry when the intent is applied.
type intent struct {
	kind      intentKind
	key       entryKey
	tier      Tier
	settingID int64
	value     *string
	// replaces is a stored setting that must be removed before the setting is
	// created again under the same key.
	replaces int64
}

func (s *Store) findIntent(key entryKey, tier Tier, kinds ...intentKind) *intent {
	for _, in := range s.pending {
		if in.key != key || in.tier != tier {
			continue
		}
		for _, k := range kinds {
			if in.kind == k {
				return in
			}
		}
	}
	return nil
}

// dropIntents removes pending intents for key matching fn.
func (s *Store) dropIntents(key entryKey, fn func(*intent) bool) {
	kept := s.pending[:0]
	for _, in := range s.pending {
		if in.key == key && fn(in) {
			continue
		}
		kept = append(kept, in)
	}
	for i := len(kept); i < len(s.pending); i++ {
		s.pending[i] = nil
	}
	s.pending = kept
}

// recordValueWrite coalesces a value write with any pending write for the same
// key and tier, so repeated sets produce a single write.
func (s *Store) recordValueWrite(key entryKey, tier Tier, kind intentKind, settingID int64, value string) {
	if in := s.findIntent(key, tier, intentCreateValue, intentUpdate); in != nil {
		in.value = StringPtr(value)
		return
	}
	s.dropIntents(key, func(in *intent) bool {
		return in.kind == intentDeleteValue && in.tier == tier
	})
	s.pending = append(s.pending, &intent{
		kind:      kind,
		key:       key,
		tier:      tier,
		settingID: settingID,
		value:     StringPtr(value),
	})
}

func (s *Store) removeApplied(applied map[*intent]bool) {
	if len(applied) == 0 {
		return
	}
	kept := make([]*intent, 0, len(s.pending))
	for _, in := range s.pending {
		if !applied[in] {
			kept = append(kept, in)
		}
	}
	s.pending = kept
}
