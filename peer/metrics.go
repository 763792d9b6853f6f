// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package peer

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors an Engine updates as it
// dispatches requests and notifications. Construct with NewMetrics and
// register the result with a prometheus.Registerer; a nil *Metrics on
// Options disables instrumentation entirely.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	NotificationsTotal *prometheus.CounterVec
	PendingRequests    prometheus.Gauge
}

// NewMetrics constructs a Metrics with the given namespace and, when reg
// is non-nil, registers its collectors with reg.MustRegister (which
// panics on a conflict). With a nil reg nothing is registered.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Inbound requests handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Inbound request handling latency, by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications sent or received, by method and direction.",
		}, []string{"method", "direction"}),
		PendingRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_requests",
			Help:      "Outbound requests awaiting a response.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.NotificationsTotal, m.PendingRequests)
	}
	return m
}
