package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signdata_jobs_processed_total",
		Help: "Total number of ingestion jobs processed, by status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "signdata_stage_duration_seconds",
		Help:    "Duration of each ingestion stage",
		Buckets: []float64{0.05, 0.25, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signdata_frames_sampled_total",
		Help: "Total number of video frames kept by the sampler",
	})

	SamplesSavedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signdata_samples_saved_total",
		Help: "Total number of dataset samples persisted, by source",
	}, []string{"source"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signdata_active_workers",
		Help: "Number of workers currently processing a job",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signdata_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})

	ValidatorMismatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signdata_validator_mismatches",
		Help: "Shape mismatches found by the last validation run",
	})
)
