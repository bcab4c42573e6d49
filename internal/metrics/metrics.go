package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waleopard",
			Name:      "webhook_requests_total",
			Help:      "Webhook HTTP requests by outcome.",
		},
		[]string{"outcome"}, // "accepted", "bad_signature", "unknown_channel", "malformed"
	)

	EventsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waleopard",
			Name:      "ingest_events_enqueued_total",
			Help:      "Classified webhook events handed to the ingest pool.",
		},
		[]string{"kind"},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "waleopard",
			Name:      "ingest_events_dropped_total",
			Help:      "Events dropped because the ingest pool queue was full.",
		},
	)

	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "waleopard",
			Name:      "ingest_events_processed_total",
			Help:      "Ingest pipeline outcomes.",
		},
		[]string{"kind", "outcome"}, // outcome: "applied", "duplicate", "untracked", "error"
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "waleopard",
			Name:      "ingest_queue_depth",
			Help:      "Events waiting in the ingest pool.",
		},
	)

	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "waleopard",
			Name:      "ingest_processing_duration_seconds",
			Help:      "Duration of asynchronous event processing.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	BackfillReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "waleopard",
			Name:      "backfill_events_replayed_total",
			Help:      "Raw inbound events replayed by the backfill reconciler.",
		},
	)
)
