// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package build

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for coordinator operations.
var meter = otel.Meter("tidepool.build")

// Metrics for coordinator operations.
var (
	compilesScheduled metric.Int64Counter
	cacheHits         metric.Int64Counter
	deltasPublished   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		compilesScheduled, err = meter.Int64Counter(
			"compiles_scheduled_total",
			metric.WithDescription("Total compiles scheduled by the coordinator"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheHits, err = meter.Int64Counter(
			"compile_cache_hits_total",
			metric.WithDescription("Single-file compiles satisfied from the result cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		deltasPublished, err = meter.Int64Counter(
			"module_deltas_published_total",
			metric.WithDescription("Total module_updated events published"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordScheduled counts one scheduled compile.
func recordScheduled(project string, fullProject bool) {
	if compilesScheduled == nil {
		return
	}
	compilesScheduled.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("project", project),
			attribute.Bool("full_project", fullProject),
		))
}

// recordCacheHit counts one cache-served compile.
func recordCacheHit(project string) {
	if cacheHits == nil {
		return
	}
	cacheHits.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("project", project)))
}

// recordDelta counts one published module delta.
func recordDelta(project string) {
	if deltasPublished == nil {
		return
	}
	deltasPublished.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("project", project)))
}
