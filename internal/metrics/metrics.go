package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	auctionRounds = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctioneer",
		Name:      "rounds_total",
		Help:      "Auction rounds by phase and outcome.",
	}, []string{"phase", "outcome"})

	auctionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auctioneer",
		Name:      "round_duration_seconds",
		Help:      "End-to-end auction round duration.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 6, 8, 12},
	}, []string{"phase"})

	solverLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "auctioneer",
		Name:      "solver_latency_seconds",
		Help:      "Per-solver quote latency, including timeouts.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 6, 8},
	}, []string{"solver", "phase"})

	solverErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctioneer",
		Name:      "solver_errors_total",
		Help:      "Per-solver quote failures by error code.",
	}, []string{"solver", "code"})

	auctionWins = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctioneer",
		Name:      "wins_total",
		Help:      "Auction wins per solver.",
	}, []string{"solver", "phase"})

	publishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "auctioneer",
		Name:      "publish_failures_total",
		Help:      "Failed fire-and-forget publishes by sink.",
	}, []string{"sink"})
)

func RoundSettled(phase, outcome string, elapsed time.Duration) {
	auctionRounds.WithLabelValues(phase, outcome).Inc()
	auctionDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

func SolverQuoted(solver, phase string, elapsed time.Duration, errCode string) {
	solverLatency.WithLabelValues(solver, phase).Observe(elapsed.Seconds())
	if errCode != "" {
		solverErrors.WithLabelValues(solver, errCode).Inc()
	}
}

func AuctionWon(solver, phase string) {
	auctionWins.WithLabelValues(solver, phase).Inc()
}

func PublishFailed(sink string) {
	publishFailures.WithLabelValues(sink).Inc()
}
