package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "model_fetcher_tasks_created_total",
		Help: "Total number of tasks created",
	}, []string{"kind"})

	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "model_fetcher_tasks_finished_total",
		Help: "Total number of tasks that reached a terminal status",
	}, []string{"kind", "status"})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "model_fetcher_active_jobs",
		Help: "Number of jobs currently tracked by the supervisor",
	})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "model_fetcher_job_duration_seconds",
		Help:    "Job duration in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	}, []string{"kind"})

	DownloadBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "model_fetcher_download_bytes_total",
		Help: "Total bytes downloaded",
	}, []string{"source"})

	SizeChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "model_fetcher_size_checks_total",
		Help: "Total number of size lookups",
	}, []string{"source", "result"})
)
