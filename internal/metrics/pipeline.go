// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsStartedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrun_sessions_started_total",
		Help: "Total number of accepted pipeline sessions by site",
	}, []string{"site"})

	SessionsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrun_sessions_finished_total",
		Help: "Total number of pipeline sessions that reached a terminal status",
	}, []string{"site", "status"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "auditrun_sessions_active",
		Help: "Number of pipeline sessions currently executing",
	})

	ValidationRejectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrun_validation_rejects_total",
		Help: "Total number of start requests rejected by validation, by field",
	}, []string{"field"})

	TaskStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrun_task_start_total",
		Help: "Total number of external task start attempts",
	}, []string{"task", "result"})

	TaskExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrun_task_exit_total",
		Help: "Total number of external task exits by reason",
	}, []string{"task", "reason"})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auditrun_task_duration_seconds",
		Help:    "Wall clock duration of external tasks",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
	}, []string{"task", "reason"})

	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auditrun_proc_terminate_total",
		Help: "Total number of signals sent to external task process groups",
	}, []string{"signal", "result"})
)

// IncSessionStarted records an accepted session.
func IncSessionStarted(site string) {
	SessionsStartedTotal.WithLabelValues(site).Inc()
}

// IncSessionFinished records a terminal session outcome.
func IncSessionFinished(site, status string) {
	SessionsFinishedTotal.WithLabelValues(site, status).Inc()
}

// IncValidationReject records a rejected start request field.
func IncValidationReject(field string) {
	ValidationRejectsTotal.WithLabelValues(field).Inc()
}

// IncTaskStart records a task start attempt ("ok" or "spawn_error").
func IncTaskStart(task, result string) {
	TaskStartTotal.WithLabelValues(task, result).Inc()
}

// ObserveTaskExit records how a task ended and how long it ran.
func ObserveTaskExit(task, reason string, d time.Duration) {
	TaskExitTotal.WithLabelValues(task, reason).Inc()
	TaskDuration.WithLabelValues(task, reason).Observe(d.Seconds())
}

// IncProcTerminate records a signal delivery to a task process group.
func IncProcTerminate(signal, result string) {
	ProcTerminateTotal.WithLabelValues(signal, result).Inc()
}
