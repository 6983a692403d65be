// Package metrics exposes Prometheus instrumentation for the batch runner
// and solver, following the promauto registration pattern used elsewhere in
// the example pack's observability code.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SimulationsStarted counts every simulation request handed to the
	// batch runner, regardless of outcome.
	SimulationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridesim_simulations_started_total",
		Help: "Total number of simulations started by the batch runner.",
	})

	// SimulationsCompleted counts simulations that finished without error.
	SimulationsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridesim_simulations_completed_total",
		Help: "Total number of simulations that completed successfully.",
	})

	// SimulationsFailed counts simulations that returned an error. An
	// infeasible course, or a deadline after a feasible trial was found,
	// yields a preliminary result without an error and counts as completed.
	SimulationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridesim_simulations_failed_total",
		Help: "Total number of simulations that returned an error.",
	})

	// BonkCount counts completed simulations in which the rider's W'-balance
	// reached zero at least once.
	BonkCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ridesim_bonk_total",
		Help: "Total number of simulations in which the rider fully depleted W'.",
	})

	// SolverIterations records how many binary-search iterations the power
	// solver used on each simulation run.
	SolverIterations = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ridesim_solver_iterations",
		Help:    "Number of binary-search iterations the power solver used per run.",
		Buckets: prometheus.LinearBuckets(0, 2, 16),
	})
)
