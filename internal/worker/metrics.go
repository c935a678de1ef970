package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumenote",
		Subsystem: "worker",
		Name:      "jobs_processed_total",
		Help:      "Jobs whose body completed successfully.",
	}, []string{"kind"})

	jobsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lumenote",
		Subsystem: "worker",
		Name:      "jobs_failed_total",
		Help:      "Jobs whose body returned an error.",
	}, []string{"kind"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lumenote",
		Subsystem: "worker",
		Name:      "job_duration_seconds",
		Help:      "Wall time of one job body execution.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"kind"})
)
