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

// Package settingscache memoizes the full settings rowset in front of any
// settings.Repository and forgets it whenever the repository is written to.
package settingscache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/cardinalhq/settingstore/settings"
)

// producerTimeout bounds a shared load once it no longer follows the
// context of the caller that started it.
const producerTimeout = 30 * time.Second

// Producer loads the value to remember on a miss.
type Producer func(ctx context.Context) ([]settings.Row, error)

// Backend is the cache the Repository decorator stores the rowset in.
type Backend interface {
	// Get returns the remembered rows for key, if any.
	Get(key string) ([]settings.Row, bool)
	// RememberForever returns the rows for key, calling producer on a miss
	// and keeping its result without expiry.
	RememberForever(ctx context.Context, key string, producer Producer) ([]settings.Row, error)
	// Forget drops key. A producer that started before Forget never
	// stores its result.
	Forget(key string)
}

// TTLBackend is an in-process Backend.
// Returned rows are shared between callers and must not be modified.
type TTLBackend struct {
	cache *ttlcache.Cache[string, []settings.Row]
	group singleflight.Group

	mu          sync.Mutex
	generations map[string]uint64
}

var _ Backend = (*TTLBackend)(nil)

// NewTTLBackend creates a TTLBackend. Call Close to stop its janitor.
func NewTTLBackend() *TTLBackend {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []settings.Row](ttlcache.NoTTL),
		ttlcache.WithDisableTouchOnHit[string, []settings.Row](),
	)
	go cache.Start()
	return &TTLBackend{
		cache:       cache,
		generations: map[string]uint64{},
	}
}

// Close stops the cache background goroutine.
func (b *TTLBackend) Close() {
	b.cache.Stop()
}

func (b *TTLBackend) Get(key string) ([]settings.Row, bool) {
	item := b.cache.Get(key)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

func (b *TTLBackend) RememberForever(ctx context.Context, key string, producer Producer) ([]settings.Row, error) {
	if rows, ok := b.Get(key); ok {
		recordHit(ctx, key)
		return rows, nil
	}
	recordMiss(ctx, key)

	gen := b.generation(key)

	// Callers that miss within the same generation share one producer call.
	// It runs detached from any single caller so one cancelled request does
	// not fail the others; each caller still stops waiting on its own ctx.
	ch := b.group.DoChan(key+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), producerTimeout)
		defer cancel()
		rows, err := producer(loadCtx)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		if b.generations[key] == gen {
			b.cache.Set(key, rows, ttlcache.NoTTL)
		}
		b.mu.Unlock()
		return rows, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]settings.Row), nil
	}
}

func (b *TTLBackend) Forget(key string) {
	b.mu.Lock()
	b.generations[key]++
	b.cache.Delete(key)
	b.mu.Unlock()
	recordInvalidation(key)
}

func (b *TTLBackend) generation(key string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.generations[key]
}
