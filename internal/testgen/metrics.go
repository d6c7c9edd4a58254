package testgen

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// filePipelines counts per-file suggestion pipelines by outcome (ok, fallback, error)
	filePipelines = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testpilot_file_pipelines_total",
		Help: "Per-file suggestion pipelines by outcome",
	}, []string{"result"})

	// batchSize tracks how many files each suggestion batch carried
	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "testpilot_batch_files",
		Help:    "Number of files per suggestion batch",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	// submissions counts pull request submissions by result; failures are labelled with the step
	submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testpilot_submissions_total",
		Help: "Pull request submissions by result",
	}, []string{"result"})
)
