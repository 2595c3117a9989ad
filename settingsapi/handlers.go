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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cardinalhq/settingstore/internal/identity"
	"github.com/cardinalhq/settingstore/settings"
)

// SettingResponse is the body of a single setting read.
type SettingResponse struct {
	Package string  `json:"package"`
	Key     string  `json:"key"`
	Value   *string `json:"value"`
}

// SetRequest is the body of a single setting write. A null value deletes.
type SetRequest struct {
	Value any `json:"value"`
}

// SetManyRequest is the body of a batch write.
type SetManyRequest struct {
	Values map[string]any `json:"values"`
}

// GroupSetting is one setting in a group listing, resolved for the caller.
type GroupSetting struct {
	SettingID          int64   `json:"setting_id"`
	Name               string  `json:"name"`
	DefaultValue       *string `json:"default_value"`
	OverridesPermitted bool    `json:"overrides_permitted"`
	Value              *string `json:"value"`
	Override           *string `json:"override,omitempty"`
}

func requestStore(w http.ResponseWriter, r *http.Request) (*settings.Store, bool) {
	store, ok := StoreFromContext(r.Context())
	if !ok {
		http.Error(w, "settings store not found in context", http.StatusInternalServerError)
		return nil, false
	}
	return store, true
}

// callOptions reads "package" and "override" from the query string.
func callOptions(r *http.Request, overrideDefault bool) ([]settings.Option, error) {
	q := r.URL.Query()
	useOverride := overrideDefault
	if raw := q.Get("override"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid override flag %q", raw)
		}
		useOverride = b
	}
	return []settings.Option{
		settings.WithPackage(q.Get("package")),
		settings.WithOverride(useOverride),
	}, nil
}

func packageParam(r *http.Request, store *settings.Store) string {
	if pkg := r.URL.Query().Get("package"); pkg != "" {
		return pkg
	}
	return store.DefaultPackageName()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, settings.ErrOverrideNotPermitted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, settings.ErrInconsistentSettings):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("Settings request failed",
			slog.String("request_id", RequestIDFromContext(r.Context())),
			slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	store, ok := requestStore(w, r)
	if !ok {
		return
	}
	all, err := store.All(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": all})
}

func (s *Service) handleGet(w http.ResponseWriter, r *http.Request) {
	store, ok := requestStore(w, r)
	if !ok {
		return
	}
	key := r.PathValue("key")
	opts, err := callOptions(r, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var def any
	if r.URL.Query().Has("default") {
		def = r.URL.Query().Get("default")
	} else {
		exists, err := store.Has(r.Context(), key, opts...)
		if err != nil {
			writeStoreError(w, r, err)
			return
		}
		if !exists {
			http.Error(w, fmt.Sprintf("setting %q not found", key), http.StatusNotFound)
			return
		}
	}

	v, err := store.Get(r.Context(), key, def, opts...)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	resp := SettingResponse{Package: packageParam(r, store), Key: key}
	if str, ok := v.(string); ok {
		resp.Value = &str
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handleSet(w http.ResponseWriter, r *http.Request) {
	store, ok := requestStore(w, r)
	if !ok {
		return
	}
	opts, err := callOptions(r, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req SetRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	if err := store.Set(r.Context(), r.PathValue("key"), req.Value, opts...); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.saveAndRespond(w, r, store)
}

func (s *Service) handleSetMany(w http.ResponseWriter, r *http.Request) {
	store, ok := requestStore(w, r)
	if !ok {
		return
	}
	opts, err := callOptions(r, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var req SetManyRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Values) == 0 {
		http.Error(w, "values cannot be empty", http.StatusBadRequest)
		return
	}

	if err := store.SetMany(r.Context(), req.Values, opts...); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.saveAndRespond(w, r, store)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	store, ok := requestStore(w, r)
	if !ok {
		return
	}
	opts, err := callOptions(r, false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := store.Delete(r.Context(), r.PathValue("key"), opts...); err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.saveAndRespond(w, r, store)
}

// saveAndRespond saves inside the handler so the client sees write failures.
func (s *Service) saveAndRespond(w http.ResponseWriter, r *http.Request, store *settings.Store) {
	if _, err := store.Save(r.Context()); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleGroups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	groups, err := s.repo.SettingsGroups(r.Context(), splitList(q.Get("skip")), splitList(q.Get("package")))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Service) handleGroup(w http.ResponseWriter, r *http.Request) {
	store, ok := requestStore(w, r)
	if !ok {
		return
	}
	pkg := packageParam(r, store)
	rows, err := s.repo.SettingsForGroup(r.Context(), r.PathValue("group"), pkg)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	owner, _ := identity.FromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"group":    settings.NewGroup(r.PathValue("group"), pkg),
		"settings": groupSettings(rows, owner),
	})
}

// groupSettings folds the rows of a group into one entry per setting, keeping
// the default-tier value and the owner's override.
func groupSettings(rows []settings.Row, owner settings.Owner) []GroupSetting {
	out := []GroupSetting{}
	index := map[int64]int{}
	for _, row := range rows {
		i, seen := index[row.SettingID]
		if !seen {
			i = len(out)
			index[row.SettingID] = i
			out = append(out, GroupSetting{
				SettingID:          row.SettingID,
				Name:               row.Name,
				DefaultValue:       row.DefaultValue,
				OverridesPermitted: row.OverridesPermitted,
			})
		}
		if row.ValueID == nil {
			continue
		}
		switch {
		case !row.Owner.Valid:
			out[i].Value = row.Value
		case owner.Valid && row.Owner == owner && row.OverridesPermitted:
			out[i].Override = row.Value
		}
	}
	for i := range out {
		if out[i].Value == nil {
			out[i].Value = out[i].DefaultValue
		}
	}
	return out
}
