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
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
	saveFailures    metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/settingstore/settingsapi")

	var err error

	requestCounter, err = meter.Int64Counter(
		"settingstore.api.requests",
		metric.WithDescription("Number of settings API requests handled"),
	)
	if err != nil {
		log.Fatalf("failed to create api.requests counter: %v", err)
	}

	requestDuration, err = meter.Float64Histogram(
		"settingstore.api.request.duration",
		metric.WithDescription("Duration of settings API requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		log.Fatalf("failed to create api.request.duration histogram: %v", err)
	}

	saveFailures, err = meter.Int64Counter(
		"settingstore.api.save.failures",
		metric.WithDescription("Number of request-scoped stores that failed to save"),
	)
	if err != nil {
		log.Fatalf("failed to create api.save.failures counter: %v", err)
	}
}

func recordRequest(ctx context.Context, route string, status int, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	requestCounter.Add(ctx, 1, attrs)
	requestDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func recordSaveFailure(ctx context.Context) {
	saveFailures.Add(ctx, 1)
}
