package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// completionDuration tracks backend latency by provider and outcome
	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "testpilot_completion_duration_seconds",
		Help:    "Completion backend call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
	}, []string{"provider", "result"})

	// malformedResponses counts structured parses that fell back to the default proposal
	malformedResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "testpilot_malformed_responses_total",
		Help: "Suggestion completions that could not be parsed into proposals",
	}, []string{"reason"})
)
