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

// callOptions holds the per-call package and tier selection.
type callOptions struct {
	pkg         string
	useOverride bool
}

// Option modifies a single Get, Has, Set or Delete call.
type Option func(*callOptions)

// WithPackage selects the package a setting belongs to.
func WithPackage(pkg string) Option {
	return func(o *callOptions) {
		if pkg != "" {
			o.pkg = pkg
		}
	}
}

// WithOverride selects whether the call targets the identity override tier.
// Reads consider overrides by default; writes target the default tier by default.
func WithOverride(useOverride bool) Option {
	return func(o *callOptions) {
		o.useOverride = useOverride
	}
}

func (s *Store) readOptions(opts []Option) callOptions {
	o := callOptions{pkg: s.defaultPackage, useOverride: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (s *Store) writeOptions(opts []Option) callOptions {
	o := callOptions{pkg: s.defaultPackage, useOverride: false}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// StoreOption configures a Store at construction time.
type StoreOption func(*Store)

// WithDefaultPackage changes the package used when callers do not name one.
func WithDefaultPackage(pkg string) StoreOption {
	return func(s *Store) {
		if pkg != "" {
			s.defaultPackage = pkg
		}
	}
}
