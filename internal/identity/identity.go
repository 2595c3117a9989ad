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

// Package identity resolves the identity a settings Store acts on behalf of
// from HTTP requests and carries it through request contexts.
package identity

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cardinalhq/settingstore/settings"
)

// ErrInvalidIdentity is returned when a request carries identity
// information that cannot be accepted.
var ErrInvalidIdentity = errors.New("invalid identity")

type contextKey struct{}

var identityKey = contextKey{}

// WithIdentity returns a new context with the owner stored in it.
func WithIdentity(ctx context.Context, owner settings.Owner) context.Context {
	return context.WithValue(ctx, identityKey, owner)
}

// FromContext retrieves the owner stored by WithIdentity.
func FromContext(ctx context.Context) (settings.Owner, bool) {
	owner, ok := ctx.Value(identityKey).(settings.Owner)
	return owner, ok
}

// Context resolves the identity stored in the context, or NoIdentity.
var Context settings.IdentityProvider = settings.IdentityFunc(func(ctx context.Context) (settings.Owner, error) {
	owner, _ := FromContext(ctx)
	return owner, nil
})

// Static always resolves to the given identity. An id of zero or less means
// nobody is authenticated.
func Static(id int64) settings.IdentityProvider {
	if id <= 0 {
		return settings.StaticIdentity(settings.NoIdentity)
	}
	return settings.StaticIdentity(settings.IdentityOwner(id))
}

// Resolver extracts the identity from a request. A request without identity
// information resolves to NoIdentity.
type Resolver interface {
	Resolve(r *http.Request) (settings.Owner, error)
}

// HeaderResolver trusts an identity id set by a fronting proxy.
type HeaderResolver struct {
	Header string
}

func (h HeaderResolver) Resolve(r *http.Request) (settings.Owner, error) {
	raw := strings.TrimSpace(r.Header.Get(h.Header))
	if raw == "" {
		return settings.NoIdentity, nil
	}
	return ParseID(raw)
}

// ParseID parses a positive decimal identity id.
func ParseID(raw string) (settings.Owner, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return settings.NoIdentity, ErrInvalidIdentity
	}
	return settings.IdentityOwner(id), nil
}
