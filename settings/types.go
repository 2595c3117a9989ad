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
	"strconv"
	"strings"
)

// DefaultPackage is the package used when a caller does not name one.
const DefaultPackage = "mybb/core"

// Owner identifies who a setting value belongs to.
// The zero Owner is the default tier; a valid Owner is an identity override.
type Owner struct {
	IdentityID int64
	Valid      bool
}

// NoIdentity is the owner of default-tier values.
var NoIdentity = Owner{}

// IdentityOwner returns the owner for the given identity id.
func IdentityOwner(id int64) Owner {
	return Owner{IdentityID: id, Valid: true}
}

func (o Owner) String() string {
	if !o.Valid {
		return "none"
	}
	return strconv.FormatInt(o.IdentityID, 10)
}

// Tier selects which value of a setting an operation targets.
type Tier int

const (
	TierDefault Tier = iota
	TierOverride
)

func (t Tier) String() string {
	switch t {
	case TierDefault:
		return "default"
	case TierOverride:
		return "override"
	default:
		return "unknown"
	}
}

// Row is one setting joined with one of its values.
// Settings without any value rows appear once with a nil ValueID.
type Row struct {
	SettingID          int64
	Package            string
	Name               string
	DefaultValue       *string
	OverridesPermitted bool
	ValueID            *int64
	Value              *string
	Owner              Owner
}

// Entry is the merged, per-Store view of one setting.
type Entry struct {
	SettingID          int64   `json:"setting_id"`
	Package            string  `json:"package"`
	Name               string  `json:"name"`
	DefaultValue       *string `json:"default_value"`
	OverridesPermitted bool    `json:"overrides_permitted"`
	// HasValue is set when a default-tier value row exists.
	HasValue bool    `json:"has_value"`
	Value    *string `json:"value"`
	// HasOverride is set when the current identity has an override row.
	HasOverride bool    `json:"has_override"`
	Override    *string `json:"override"`
}

// DefaultTierValue returns the default-tier value, falling back to the
// setting's own default when the value row is absent or null.
func (e *Entry) DefaultTierValue() *string {
	if e.HasValue && e.Value != nil {
		return e.Value
	}
	return e.DefaultValue
}

// Resolve returns the effective value of the entry.
func (e *Entry) Resolve(useOverride bool) *string {
	if useOverride && e.HasOverride && e.Override != nil {
		return e.Override
	}
	return e.DefaultTierValue()
}

func (e *Entry) clone() Entry {
	c := *e
	c.DefaultValue = cloneString(e.DefaultValue)
	c.Value = cloneString(e.Value)
	c.Override = cloneString(e.Override)
	return c
}

// Group is one administrative settings group: the first dot-separated segment
// of a setting name, within a package.
type Group struct {
	Group   string       `json:"group"`
	Package GroupPackage `json:"package"`
}

// GroupPackage carries the package name in the forms admin listings need.
type GroupPackage struct {
	Original    string   `json:"original"`
	DotNotation string   `json:"dot_notation"`
	Split       []string `json:"split"`
}

// NewGroup builds the group a setting name belongs to.
func NewGroup(name, pkg string) Group {
	group, _, _ := strings.Cut(name, ".")
	return Group{
		Group: group,
		Package: GroupPackage{
			Original:    pkg,
			DotNotation: strings.ReplaceAll(pkg, "/", "."),
			Split:       strings.Split(pkg, "/"),
		},
	}
}

// StringPtr returns a pointer to s.
func StringPtr(s string) *string {
	return &s
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func equalStrings(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
