// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package access

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for permission checks.
var (
	// checkDuration tracks the latency of Check calls.
	checkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "access_check_duration_seconds",
		Help:    "Histogram of permission check latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// checkDecisions counts permission checks by decision.
	checkDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "access_check_decisions_total",
		Help: "Total number of permission checks by decision",
	}, []string{"decision"})
)

// recordCheck records one completed permission check.
func recordCheck(duration time.Duration, allowed bool) {
	checkDuration.Observe(duration.Seconds())
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	checkDecisions.WithLabelValues(decision).Inc()
}
