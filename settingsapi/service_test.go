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

package settingsapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/settingstore/internal/identity"
	"github.com/cardinalhq/settingstore/settings"
	"github.com/cardinalhq/settingstore/settingscache"
	"github.com/cardinalhq/settingstore/settingsdb/sqlite"
)

const identityHeader = "X-Identity-Id"

func newTestServer(t *testing.T) (*httptest.Server, settings.Repository) {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	backend := settingscache.NewTTLBackend()
	t.Cleanup(backend.Close)
	repo := settingscache.New(db, backend)

	svc := NewService(repo, identity.HeaderResolver{Header: identityHeader}, 0, settings.WithDefaultPackage("acme/forum"))
	server := httptest.NewServer(svc.Handler())
	t.Cleanup(server.Close)
	return server, repo
}

func do(t *testing.T, server *httptest.Server, method, path, body, identityID string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if identityID != "" {
		req.Header.Set(identityHeader, identityID)
	}
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)
	resp := do(t, server, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetThenGet(t *testing.T) {
	server, _ := newTestServer(t)

	resp := do(t, server, http.MethodPut, "/api/v1/settings/board.size", `{"value": 20}`, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp = do(t, server, http.MethodGet, "/api/v1/settings/board.size", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[SettingResponse](t, resp)
	assert.Equal(t, "acme/forum", got.Package)
	require.NotNil(t, got.Value)
	assert.Equal(t, "20", *got.Value)
}

func TestOverrideVisibleOnlyToOwner(t *testing.T) {
	server, _ := newTestServer(t)

	require.Equal(t, http.StatusNoContent,
		do(t, server, http.MethodPut, "/api/v1/settings/theme", `{"value": "light"}`, "").StatusCode)
	require.Equal(t, http.StatusNoContent,
		do(t, server, http.MethodPut, "/api/v1/settings/theme?override=true", `{"value": "dark"}`, "7").StatusCode)

	owner := decode[SettingResponse](t, do(t, server, http.MethodGet, "/api/v1/settings/theme", "", "7"))
	assert.Equal(t, "dark", *owner.Value)

	ownerDefault := decode[SettingResponse](t, do(t, server, http.MethodGet, "/api/v1/settings/theme?override=false", "", "7"))
	assert.Equal(t, "light", *ownerDefault.Value)

	other := decode[SettingResponse](t, do(t, server, http.MethodGet, "/api/v1/settings/theme", "", "8"))
	assert.Equal(t, "light", *other.Value)

	require.Equal(t, http.StatusNoContent,
		do(t, server, http.MethodDelete, "/api/v1/settings/theme?override=true", "", "7").StatusCode)
	owner = decode[SettingResponse](t, do(t, server, http.MethodGet, "/api/v1/settings/theme", "", "7"))
	assert.Equal(t, "light", *owner.Value)
}

func TestGetMissing(t *testing.T) {
	server, _ := newTestServer(t)

	resp := do(t, server, http.MethodGet, "/api/v1/settings/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, server, http.MethodGet, "/api/v1/settings/nope?default=fallback", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[SettingResponse](t, resp)
	assert.Equal(t, "fallback", *got.Value)
}

func TestSetMany(t *testing.T) {
	server, _ := newTestServer(t)

	resp := do(t, server, http.MethodPut, "/api/v1/settings?package=acme/mail",
		`{"values": {"mail.from": "noreply@example.com", "mail.enabled": true, "mail.retries": 3}}`, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	got := decode[SettingResponse](t, do(t, server, http.MethodGet, "/api/v1/settings/mail.enabled?package=acme/mail", "", ""))
	assert.Equal(t, "1", *got.Value)

	resp = do(t, server, http.MethodPut, "/api/v1/settings", `{"values": {}}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteSetting(t *testing.T) {
	server, _ := newTestServer(t)

	require.Equal(t, http.StatusNoContent,
		do(t, server, http.MethodPut, "/api/v1/settings/old", `{"value": "x"}`, "").StatusCode)
	require.Equal(t, http.StatusNoContent,
		do(t, server, http.MethodDelete, "/api/v1/settings/old", "", "").StatusCode)
	assert.Equal(t, http.StatusNotFound,
		do(t, server, http.MethodGet, "/api/v1/settings/old", "", "").StatusCode)
}

func TestBadRequests(t *testing.T) {
	server, _ := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest,
		do(t, server, http.MethodPut, "/api/v1/settings/a", `{`, "").StatusCode)
	assert.Equal(t, http.StatusBadRequest,
		do(t, server, http.MethodPut, "/api/v1/settings/a?override=maybe", `{"value": 1}`, "").StatusCode)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, server, http.MethodGet, "/api/v1/settings", "", "not-a-number").StatusCode)
}

func TestListSettings(t *testing.T) {
	server, _ := newTestServer(t)
	require.Equal(t, http.StatusNoContent,
		do(t, server, http.MethodPut, "/api/v1/settings/board.title", `{"value": "Forum"}`, "").StatusCode)

	resp := do(t, server, http.MethodGet, "/api/v1/settings", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Settings map[string]map[string]settings.Entry `json:"settings"`
	}](t, resp)
	entry, ok := body.Settings["acme/forum"]["board.title"]
	require.True(t, ok)
	assert.Equal(t, "Forum", *entry.Value)
}

func TestGroups(t *testing.T) {
	server, _ := newTestServer(t)
	require.Equal(t, http.StatusNoContent, do(t, server, http.MethodPut, "/api/v1/settings",
		`{"values": {"board.title": "Forum", "board.size": 10, "internal.token": "t"}}`, "").StatusCode)
	require.Equal(t, http.StatusNoContent,
		do(t, server, http.MethodPut, "/api/v1/settings/board.size?override=true", `{"value": 25}`, "3").StatusCode)

	groups := decode[struct {
		Groups []settings.Group `json:"groups"`
	}](t, do(t, server, http.MethodGet, "/api/v1/groups?skip=internal", "", ""))
	require.Len(t, groups.Groups, 1)
	assert.Equal(t, "board", groups.Groups[0].Group)
	assert.Equal(t, "acme.forum", groups.Groups[0].Package.DotNotation)

	group := decode[struct {
		Settings []GroupSetting `json:"settings"`
	}](t, do(t, server, http.MethodGet, "/api/v1/groups/board", "", "3"))
	require.Len(t, group.Settings, 2)
	byName := map[string]GroupSetting{}
	for _, s := range group.Settings {
		byName[s.Name] = s
	}
	assert.Equal(t, "10", *byName["board.size"].Value)
	require.NotNil(t, byName["board.size"].Override)
	assert.Equal(t, "25", *byName["board.size"].Override)
	assert.Nil(t, byName["board.title"].Override)
}

func TestSaveOnTerminate(t *testing.T) {
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "mw.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	handler := SaveOnTerminate(db)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		store, ok := StoreFromContext(r.Context())
		require.True(t, ok)
		require.NoError(t, store.Set(r.Context(), "late", "written"))
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	fresh := settings.New(db, nil)
	v, err := fresh.Get(context.Background(), "late", nil)
	require.NoError(t, err)
	assert.Equal(t, "written", v)
}

func TestGroupSettings(t *testing.T) {
	id := func(v int64) *int64 { return &v }
	rows := []settings.Row{
		{SettingID: 1, Name: "g.a", DefaultValue: settings.StringPtr("d")},
		{SettingID: 2, Name: "g.b", OverridesPermitted: true, ValueID: id(10), Value: settings.StringPtr("v")},
		{SettingID: 2, Name: "g.b", OverridesPermitted: true, ValueID: id(11), Value: settings.StringPtr("mine"), Owner: settings.IdentityOwner(5)},
		{SettingID: 2, Name: "g.b", OverridesPermitted: true, ValueID: id(12), Value: settings.StringPtr("theirs"), Owner: settings.IdentityOwner(6)},
		{SettingID: 3, Name: "g.c", ValueID: id(13), Value: settings.StringPtr("global")},
		{SettingID: 3, Name: "g.c", ValueID: id(14), Value: settings.StringPtr("stale"), Owner: settings.IdentityOwner(5)},
	}
	got := groupSettings(rows, settings.IdentityOwner(5))
	require.Len(t, got, 3)
	assert.Equal(t, "d", *got[0].Value)
	assert.Nil(t, got[0].Override)
	assert.Equal(t, "v", *got[1].Value)
	assert.Equal(t, "mine", *got[1].Override)

	// Overrides of a setting that no longer permits them are not reported.
	assert.Equal(t, "global", *got[2].Value)
	assert.Nil(t, got[2].Override)
}
