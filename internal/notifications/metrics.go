package notifications

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "aprendia"

var (
	notificationQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_size",
			Help:      "Number of queue entries by status",
		},
		[]string{"status"},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Total queue entries processed by outcome",
		},
		[]string{"template", "status"},
	)

	notificationSendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver a notification",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"template"},
	)

	notificationsFetched = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "queue_fetched_total",
			Help:      "Total entries fetched from queue before claim attempt",
		},
	)
)

// recordNotificationSent records a processed entry metric.
func recordNotificationSent(template, status string) {
	notificationsSent.WithLabelValues(template, status).Inc()
}

// recordNotificationDuration records delivery duration.
func recordNotificationDuration(template string, duration time.Duration) {
	notificationSendDuration.WithLabelValues(template).Observe(duration.Seconds())
}

// recordQueueFetched records the number of entries fetched from the queue.
func recordQueueFetched(count int) {
	notificationsFetched.Add(float64(count))
}

// RecordQueueStats updates queue size metrics.
func RecordQueueStats(stats *QueueStats) {
	notificationQueueSize.WithLabelValues("pending").Set(float64(stats.Pending))
	notificationQueueSize.WithLabelValues("processing").Set(float64(stats.Processing))
	notificationQueueSize.WithLabelValues("sent").Set(float64(stats.Sent))
	notificationQueueSize.WithLabelValues("failed").Set(float64(stats.Failed))
}
