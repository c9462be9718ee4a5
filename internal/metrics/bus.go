// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HubPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrun_hub_published_total",
		Help: "Total number of progress events handed to the event hub, by outcome",
	}, []string{"outcome"})

	HubDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrun_hub_dropped_total",
		Help: "Total number of progress events dropped by the event hub, by reason",
	}, []string{"reason"})

	HubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auditrun_hub_subscribers",
		Help: "Number of currently attached event stream subscribers",
	})

	HubSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auditrun_hub_sessions",
		Help: "Number of sessions currently registered in the event hub",
	})
)

// IncHubPublish records the outcome of a single publish call
// ("delivered" or "unobserved").
func IncHubPublish(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	HubPublishedTotal.WithLabelValues(outcome).Inc()
}

// IncHubDrop records a dropped event with a concrete reason.
func IncHubDrop(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	HubDroppedTotal.WithLabelValues(reason).Inc()
}
