package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwm_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wwm_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Ingest metrics
	MessagesRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwm_messages_recorded_total",
			Help: "Messages written to the durable store",
		},
		[]string{"direction"},
	)

	DuplicatesSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwm_duplicates_suppressed_total",
			Help: "Duplicate events absorbed, by suppressing layer",
		},
		[]string{"layer"}, // "cache" or "store"
	)

	EchoesDiscarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wwm_echoes_discarded_total",
			Help: "Delivered events discarded as echoes of own sends",
		},
	)

	MediaIngestFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wwm_media_ingest_failures_total",
			Help: "Attachment ingestions that failed; messages recorded without media",
		},
	)

	// Registration metrics
	CredentialsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wwm_credentials_issued_total",
			Help: "Registration credentials issued",
		},
	)

	RegistrationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwm_registrations_rejected_total",
			Help: "Registration commands rejected",
		},
		[]string{"reason"}, // "invalid_name" or "already_registered"
	)

	// Broadcast metrics
	EventsBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wwm_events_broadcast_total",
			Help: "Events published to live subscribers",
		},
		[]string{"kind"},
	)
)
