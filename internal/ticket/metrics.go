// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

package ticket

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ticketEvents counts issue and verify outcomes per ticket kind.
var ticketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ticket_events_total",
	Help: "Total ticket operations by kind and outcome",
}, []string{"kind", "outcome"})

func recordTicket(kind, outcome string) {
	ticketEvents.WithLabelValues(kind, outcome).Inc()
}
