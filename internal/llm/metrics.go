package llm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	llmRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_llm_requests_total",
			Help: "Total number of requests to the text model.",
		},
		[]string{"model", "call", "status"},
	)
	llmRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenario_llm_request_duration_seconds",
			Help:    "Histogram of text model request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model", "call"},
	)
	llmPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenario_llm_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(250, 250, 20),
		},
		[]string{"model", "call"},
	)
	llmCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenario_llm_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"model", "call"},
	)
)

func observeUsage(model, call string, u Usage) {
	if u.TotalTokens <= 0 {
		return
	}
	llmPromptTokens.WithLabelValues(model, call).Observe(float64(u.PromptTokens))
	llmCompletionTokens.WithLabelValues(model, call).Observe(float64(u.CompletionTokens))
}
