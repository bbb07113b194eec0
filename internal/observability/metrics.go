// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthVault Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the auth service counters. A nil *Metrics records nothing.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AuthOutcomes    *prometheus.CounterVec
	LockoutsTotal   prometheus.Counter
}

// NewMetrics creates the auth metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authvault_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "authvault_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		AuthOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authvault_auth_outcomes_total",
				Help: "Auth operations by operation and result code",
			},
			[]string{"operation", "code"},
		),
		LockoutsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "authvault_account_lockouts_total",
				Help: "Accounts locked after repeated failed logins",
			},
		),
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.AuthOutcomes, m.LockoutsTotal)
	return m
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, status).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveOutcome records the result of an auth operation. code is "OK" on
// success.
func (m *Metrics) ObserveOutcome(operation, code string) {
	if m == nil {
		return
	}
	m.AuthOutcomes.WithLabelValues(operation, code).Inc()
}

// ObserveLockout counts an account entering the locked state.
func (m *Metrics) ObserveLockout() {
	if m == nil {
		return
	}
	m.LockoutsTotal.Inc()
}
