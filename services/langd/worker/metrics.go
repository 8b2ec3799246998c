// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package worker

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for worker operations.
var meter = otel.Meter("tidepool.worker")

// Metrics for worker operations.
var (
	compileLatency metric.Float64Histogram
	jobsSubmitted  metric.Int64Counter
	crashTotal     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		compileLatency, err = meter.Float64Histogram(
			"compile_duration_seconds",
			metric.WithDescription("Duration of compile jobs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		jobsSubmitted, err = meter.Int64Counter(
			"compile_jobs_submitted_total",
			metric.WithDescription("Total compile jobs submitted"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		crashTotal, err = meter.Int64Counter(
			"toolchain_crashes_total",
			metric.WithDescription("Total toolchain crashes recovered at the worker boundary"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordSubmit counts one submitted job.
func recordSubmit(project string) {
	if jobsSubmitted == nil {
		return
	}
	jobsSubmitted.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("project", project)))
}

// recordCompile records one completed compile.
func recordCompile(project string, fullProject bool, elapsed time.Duration, ok bool) {
	if compileLatency == nil {
		return
	}
	compileLatency.Record(context.Background(), elapsed.Seconds(),
		metric.WithAttributes(
			attribute.String("project", project),
			attribute.Bool("full_project", fullProject),
			attribute.Bool("success", ok),
		))
}

// recordCrash counts one recovered toolchain crash.
func recordCrash(project string) {
	if crashTotal == nil {
		return
	}
	crashTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("project", project)))
}
