package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricJobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courier_jobs_completed_total",
		Help: "Jobs delivered and purged from the queue.",
	})
	metricJobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courier_jobs_failed_total",
		Help: "Jobs moved to the terminal failed state.",
	})
	metricJobsRetried = promauto.NewCounter(prometheus.CounterOpts{
		Name: "courier_jobs_retried_total",
		Help: "Job attempts rescheduled with backoff.",
	})
	metricDeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courier_delivery_attempts_total",
		Help: "Delivery attempts by outcome.",
	}, []string{"outcome"})
)
