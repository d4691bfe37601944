package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_pipeline_builds_total",
			Help: "Total number of scenario tree builds by outcome.",
		},
		[]string{"status"},
	)
	phaseDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenario_pipeline_phase_duration_seconds",
			Help:    "Duration of each pipeline phase.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"phase"},
	)
	nodesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_pipeline_nodes_generated_total",
			Help: "Total number of generated nodes by type.",
		},
		[]string{"type"},
	)
	fallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_pipeline_fallbacks_total",
			Help: "Total number of fallback values used after exhausted retries.",
		},
		[]string{"call"},
	)
	repairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenario_pipeline_repairs_total",
			Help: "Total number of structural defects repaired, by kind.",
		},
		[]string{"kind"},
	)
)
