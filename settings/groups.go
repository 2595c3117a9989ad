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
	"slices"
	"strings"
)

// SettingKey names a setting within its package.
type SettingKey struct {
	Package string
	Name    string
}

// CollectGroups derives the administrative groups from setting keys given in
// creation order. Settings whose name starts with "<skip>." for any skip
// entry are ignored, and when packages is not empty only those packages are
// considered. Each (group, package) pair is reported once, in the order it
// was first seen.
func CollectGroups(keys []SettingKey, skip, packages []string) []Group {
	type seenKey struct{ group, pkg string }
	seen := map[seenKey]bool{}

	groups := []Group{}
	for _, k := range keys {
		if len(packages) > 0 && !slices.Contains(packages, k.Package) {
			continue
		}
		if skipped(k.Name, skip) {
			continue
		}
		g := NewGroup(k.Name, k.Package)
		sk := seenKey{group: g.Group, pkg: k.Package}
		if seen[sk] {
			continue
		}
		seen[sk] = true
		groups = append(groups, g)
	}
	return groups
}

func skipped(name string, skip []string) bool {
	for _, s := range skip {
		if strings.HasPrefix(name, s+".") {
			return true
		}
	}
	return false
}

// GroupPattern returns the SQL LIKE pattern matching settings of group,
// escaping LIKE wildcards with a backslash.
func GroupPattern(group string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(group) + ".%"
}
