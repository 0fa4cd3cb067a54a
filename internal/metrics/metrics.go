// Package metrics defines the coordinator's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "syncd_coordinator_requests_total",
		Help: "Total coordinator HTTP requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "syncd_coordinator_request_duration_seconds",
		Help:    "Coordinator HTTP request latency by endpoint.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	DirectoriesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "syncd_coordinator_directories_tracked",
		Help: "Number of logical directories currently held in memory.",
	})

	UploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncd_coordinator_upload_bytes_total",
		Help: "Total bytes accepted via Upload.",
	})

	DownloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncd_coordinator_download_bytes_total",
		Help: "Total bytes served via Download.",
	})

	ConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "syncd_coordinator_conflicts_total",
		Help: "Total conflicts recorded during Negotiate.",
	})
)
