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

package settingscache

import (
	"context"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
	cacheInvalidations metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/settingstore/settingscache")

	var err error

	cacheHits, err = meter.Int64Counter(
		"settingstore.cache.hits",
		metric.WithDescription("Number of settings rowset reads served from the cache"),
	)
	if err != nil {
		log.Fatalf("failed to create cache.hits counter: %v", err)
	}

	cacheMisses, err = meter.Int64Counter(
		"settingstore.cache.misses",
		metric.WithDescription("Number of settings rowset reads that went to the repository"),
	)
	if err != nil {
		log.Fatalf("failed to create cache.misses counter: %v", err)
	}

	cacheInvalidations, err = meter.Int64Counter(
		"settingstore.cache.invalidations",
		metric.WithDescription("Number of times the settings rowset was forgotten after a write"),
	)
	if err != nil {
		log.Fatalf("failed to create cache.invalidations counter: %v", err)
	}
}

func recordHit(ctx context.Context, key string) {
	cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func recordMiss(ctx context.Context, key string) {
	cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("key", key)))
}

func recordInvalidation(key string) {
	cacheInvalidations.Add(context.Background(), 1, metric.WithAttributes(attribute.String("key", key)))
}
