package scoring

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/swapflow/auctioneer/internal/store"
)

const (
	// readTimeout caps the counter reads so scoring can never stall an
	// auction round. A miss scores -1, ranking the solver last.
	readTimeout = 100 * time.Millisecond

	// counterTTL ages out counters so a solver's bad week is forgiven.
	counterTTL = 7 * 24 * time.Hour
)

// Scorer ranks solvers by observed settlement reliability. Counters live in
// redis and are shared across service instances.
type Scorer struct {
	logger *zap.Logger
	store  store.Store
}

func NewScorer(logger *zap.Logger, st store.Store) *Scorer {
	return &Scorer{logger: logger, store: st}
}

func counterKey(chainID int64, outcome, solver string) string {
	return fmt.Sprintf("solvers:%d:%s:%s", chainID, outcome, solver)
}

// Score returns 1 - failures/(failures+successes) for the solver. A solver
// with no history scores 0. Any read problem scores -1 so an unreadable
// history never wins a swap-phase auction.
func (s *Scorer) Score(ctx context.Context, chainID int64, solver string) float64 {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	successes, err := s.counter(ctx, counterKey(chainID, "success", solver))
	if err != nil {
		s.logger.Debug("scoring.read_failed", zap.String("solver", solver), zap.Error(err))
		return -1
	}
	failures, err := s.counter(ctx, counterKey(chainID, "failure", solver))
	if err != nil {
		s.logger.Debug("scoring.read_failed", zap.String("solver", solver), zap.Error(err))
		return -1
	}

	total := successes + failures
	if total == 0 {
		return 0
	}
	return 1 - float64(failures)/float64(total)
}

func (s *Scorer) counter(ctx context.Context, key string) (int64, error) {
	val, err := s.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	if val == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %s is not a number: %w", key, err)
	}
	return n, nil
}

// ReportSuccess and ReportFailure record settlement outcomes. Both are
// fire-and-forget: a failed increment is logged, never surfaced.
func (s *Scorer) ReportSuccess(ctx context.Context, chainID int64, solver string) {
	s.report(ctx, counterKey(chainID, "success", solver))
}

func (s *Scorer) ReportFailure(ctx context.Context, chainID int64, solver string) {
	s.report(ctx, counterKey(chainID, "failure", solver))
}

func (s *Scorer) report(ctx context.Context, key string) {
	if err := s.store.Incr(ctx, key, counterTTL); err != nil {
		s.logger.Warn("scoring.report_failed", zap.String("key", key), zap.Error(err))
	}
}
