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

// Package migrations holds the options shared by the schema version checks
// of every settings database.
package migrations

import (
	"os"
	"strings"
	"time"
)

// CheckMode defines how a schema version mismatch is handled at startup.
type CheckMode int

const (
	// CheckModeWait polls until the schema reaches the expected version or the timeout passes.
	CheckModeWait CheckMode = iota
	// CheckModeWarn logs the mismatch and continues.
	CheckModeWarn
	// CheckModeSkip does not look at the schema version at all.
	CheckModeSkip
)

func (m CheckMode) String() string {
	switch m {
	case CheckModeWait:
		return "wait"
	case CheckModeWarn:
		return "warn"
	case CheckModeSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// CheckOptions contains options for migration version checking.
type CheckOptions struct {
	Mode          CheckMode
	Timeout       time.Duration
	RetryInterval time.Duration
	AllowDirty    bool
}

// CheckOption modifies CheckOptions.
type CheckOption func(*CheckOptions)

func WithCheckMode(mode CheckMode) CheckOption {
	return func(opts *CheckOptions) {
		opts.Mode = mode
	}
}

func WithTimeout(timeout time.Duration) CheckOption {
	return func(opts *CheckOptions) {
		opts.Timeout = timeout
	}
}

func WithRetryInterval(interval time.Duration) CheckOption {
	return func(opts *CheckOptions) {
		opts.RetryInterval = interval
	}
}

// WithAllowDirty allows proceeding even if the last migration did not finish cleanly.
func WithAllowDirty(allow bool) CheckOption {
	return func(opts *CheckOptions) {
		opts.AllowDirty = allow
	}
}

// DefaultCheckOptions returns the options used when none are given.
func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		Mode:          CheckModeWait,
		Timeout:       60 * time.Second,
		RetryInterval: 5 * time.Second,
		AllowDirty:    false,
	}
}

// Resolve applies options on top of the defaults and then the
// MIGRATION_CHECK_* environment overrides.
func Resolve(options ...CheckOption) CheckOptions {
	opts := DefaultCheckOptions()
	for _, option := range options {
		option(&opts)
	}
	ApplyEnvironmentOverrides(&opts)
	return opts
}

// ApplyEnvironmentOverrides reads MIGRATION_CHECK_TIMEOUT,
// MIGRATION_CHECK_RETRY_INTERVAL and MIGRATION_CHECK_ALLOW_DIRTY.
// Unparseable durations are ignored.
func ApplyEnvironmentOverrides(opts *CheckOptions) {
	if val := os.Getenv("MIGRATION_CHECK_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			opts.Timeout = d
		}
	}

	if val := os.Getenv("MIGRATION_CHECK_RETRY_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			opts.RetryInterval = d
		}
	}

	if val := os.Getenv("MIGRATION_CHECK_ALLOW_DIRTY"); val != "" {
		opts.AllowDirty = strings.EqualFold(val, "true")
	}
}

// CheckEnabled reports whether version checking is enabled for the database
// whose environment prefix is given, via <PREFIX>_MIGRATION_CHECK_ENABLED.
func CheckEnabled(prefix string) bool {
	if val := os.Getenv(prefix + "_MIGRATION_CHECK_ENABLED"); val != "" {
		return strings.EqualFold(val, "true")
	}
	return true
}
