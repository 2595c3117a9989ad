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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInconsistentSettings is matched by every *InconsistencyError.
	ErrInconsistentSettings = errors.New("settings missing from storage")

	// ErrOverrideNotPermitted is returned when writing an identity override
	// for a setting that does not allow overrides.
	ErrOverrideNotPermitted = errors.New("setting does not permit identity overrides")
)

// InconsistencyError reports requested settings that have no stored row.
type InconsistencyError struct {
	Package string
	Missing []string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("settings missing from storage in package %q: %s", e.Package, strings.Join(e.Missing, ", "))
}

func (e *InconsistencyError) Is(target error) bool {
	return target == ErrInconsistentSettings
}

// CheckKeys returns an *InconsistencyError when any of keys is absent from found.
// Missing keys are reported in request order.
func CheckKeys(pkg string, keys []string, found map[string]int64) error {
	var missing []string
	for _, key := range keys {
		if _, ok := found[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &InconsistencyError{Package: pkg, Missing: missing}
	}
	return nil
}
