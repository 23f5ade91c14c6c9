// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	requestsTotalCounter        *prometheus.CounterVec
	requestDurationMetric       prometheus.Histogram
	eventsIngestedCounter       *prometheus.CounterVec
	idempotencyReplaysCounter   prometheus.Counter
	broadcastFailuresCounter    prometheus.Counter
	auditFailuresCounter        prometheus.Counter
	secondaryWriteFailuresCount prometheus.Counter
	detachedTaskFailuresCounter *prometheus.CounterVec
)

// EventKinds are the ingestion kinds exported as metric labels.
var EventKinds = []string{
	"state_checkin",
	"practice_completion",
	"scene_event",
	"navicue_response",
	"scene_capture",
	"scene_completion",
	"journey_start",
}

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		requestsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Total handled HTTP requests by route, method, and status.",
			},
			[]string{"route", "method", "status"},
		)

		requestDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Duration of handled HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		eventsIngestedCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_events_ingested_total",
				Help: "Total event records written to the store by kind.",
			},
			[]string{"kind"},
		)

		idempotencyReplaysCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_idempotency_replays_total",
				Help: "Total requests answered from the idempotency cache.",
			},
		)

		broadcastFailuresCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_broadcast_failures_total",
				Help: "Total best-effort broadcasts that failed.",
			},
		)

		auditFailuresCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_audit_failures_total",
				Help: "Total audit rows that could not be written.",
			},
		)

		secondaryWriteFailuresCount = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_secondary_write_failures_total",
				Help: "Total secondary store writes dropped in best-effort mode.",
			},
		)

		detachedTaskFailuresCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_detached_task_failures_total",
				Help: "Total detached background tasks that failed or panicked.",
			},
			[]string{"task"},
		)

		prometheus.MustRegister(
			requestsTotalCounter,
			requestDurationMetric,
			eventsIngestedCounter,
			idempotencyReplaysCounter,
			broadcastFailuresCounter,
			auditFailuresCounter,
			secondaryWriteFailuresCount,
			detachedTaskFailuresCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, kind := range EventKinds {
			eventsIngestedCounter.WithLabelValues(kind)
		}
	})
}

func IncRequest(route, method, status string) {
	Init()
	requestsTotalCounter.WithLabelValues(route, method, status).Inc()
}

func ObserveRequestDuration(d time.Duration) {
	Init()
	requestDurationMetric.Observe(d.Seconds())
}

func IncEventIngested(kind string) {
	Init()
	eventsIngestedCounter.WithLabelValues(kind).Inc()
}

func IncIdempotencyReplay() {
	Init()
	idempotencyReplaysCounter.Inc()
}

func IncBroadcastFailure() {
	Init()
	broadcastFailuresCounter.Inc()
}

func IncAuditFailure() {
	Init()
	auditFailuresCounter.Inc()
}

func IncSecondaryWriteFailure() {
	Init()
	secondaryWriteFailuresCount.Inc()
}

func IncDetachedTaskFailure(task string) {
	Init()
	detachedTaskFailuresCounter.WithLabelValues(task).Inc()
}
