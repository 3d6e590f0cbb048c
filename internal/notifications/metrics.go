package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "slotwave"

var (
	queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_size",
			Help:      "Number of notification jobs by status",
		},
		[]string{"status"},
	)

	jobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "enqueued_total",
			Help:      "Total notification jobs enqueued",
		},
		[]string{"kind"},
	)

	jobsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "delivered_total",
			Help:      "Total delivery attempts by outcome",
		},
		[]string{"kind", "status"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to send a notification through the transport",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	batchFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_fetched_total",
			Help:      "Total jobs fetched from the queue before send attempt",
		},
	)

	transportFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "transport_failures_total",
			Help:      "Total transport send failures by class (retryable or permanent)",
		},
		[]string{"class"},
	)

	remindersDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminders",
			Name:      "dispatched_total",
			Help:      "Total reminder dispatch attempts by window and outcome",
		},
		[]string{"window", "status"},
	)
)

func recordJobEnqueued(kind string) {
	jobsEnqueued.WithLabelValues(kind).Inc()
}

func recordJobDelivered(kind, status string) {
	jobsDelivered.WithLabelValues(kind, status).Inc()
}

func recordSendDuration(kind string, duration time.Duration) {
	sendDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func recordBatchFetched(count int) {
	batchFetched.Add(float64(count))
}

// RecordTransportFailure counts a send failure by class. The pipeline retries
// every failure up to the job's budget regardless of class; the split lets
// operators tell hopeless jobs from transient outages.
func RecordTransportFailure(class string) {
	transportFailures.WithLabelValues(class).Inc()
}

func recordReminderDispatched(window, status string) {
	remindersDispatched.WithLabelValues(window, status).Inc()
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats *QueueStats) {
	queueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	queueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	queueSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
