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

// Package settings provides hierarchical, per-identity application settings.
//
// # Storage Model
//
// A setting is identified by (package, name) and carries its own default value.
// Values live in a separate table keyed by (setting id, owner). The owner is
// either empty (the default tier, visible to everyone) or an identity id (an
// override for that identity only).
//
// # Fallback Chain
//
// Reads follow: identity override -> default-tier value -> the setting's own
// default -> the caller's default. The override tier is only consulted when the
// caller asks for it and the setting permits overrides.
//
// # Store Lifecycle
//
// A Store is scoped to one unit of work, usually one request. It loads the full
// merged view from its Repository on first use, serves reads from memory, and
// records writes as pending intents. Save flushes the intents in the order
// creates, updates, deletes.
//
// # Caching
//
// The Repository may be wrapped by the settingscache decorator, which memoizes
// the full rowset under one key and forgets it on every write.
package settings
