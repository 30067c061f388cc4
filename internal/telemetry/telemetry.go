package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/swapflow/auctioneer/internal/metrics"
	"github.com/swapflow/auctioneer/internal/publisher"
	"github.com/swapflow/auctioneer/internal/store"
	"github.com/swapflow/auctioneer/pkg/config"
	"github.com/swapflow/auctioneer/pkg/model"
)

// rfqChannel is the redis pub/sub channel downstream settlement listens on.
const rfqChannel = "rfq"

// emitTimeout bounds the whole fire-and-forget fan-out.
const emitTimeout = 3 * time.Second

// winEvent is the payload published on the rfq channel: the winning quote
// merged with the round context.
type winEvent struct {
	model.Quote

	RFQ         model.RFQ            `json:"rfq"`
	AuctionData []model.AuctionEntry `json:"auctionData,omitempty"`
}

// Emitter fans a settled round out to every telemetry sink: the redis rfq
// channel, the NATS event stream, and the Postgres audit trail. All sinks are
// best-effort; a failure is counted and logged, never propagated.
type Emitter struct {
	logger *zap.Logger
	chain  *config.Chain
	store  store.Store
	pub    *publisher.Publisher
}

// NewEmitter creates an Emitter. pub may be nil when NATS is not configured.
func NewEmitter(logger *zap.Logger, chain *config.Chain, st store.Store, pub *publisher.Publisher) *Emitter {
	return &Emitter{logger: logger, chain: chain, store: st, pub: pub}
}

// RoundSettled publishes one settled round. Called on a detached goroutine by
// the orchestrator.
func (e *Emitter) RoundSettled(ctx context.Context, rfq model.RFQ, result *model.AuctionResult, phase string) {
	ctx, cancel := context.WithTimeout(ctx, emitTimeout)
	defer cancel()

	event := winEvent{
		Quote:       result.Quote,
		RFQ:         rfq,
		AuctionData: result.AuctionData,
	}
	if err := e.store.Publish(ctx, rfqChannel, event); err != nil {
		e.logger.Warn("telemetry.rfq_publish_failed",
			zap.String("session", rfq.SessionID),
			zap.Error(err))
		metrics.PublishFailed("redis")
	}

	if e.pub != nil {
		// The publisher counts its own failures.
		if err := e.pub.PublishRoundSettled(ctx, e.chain.ChainID, result); err != nil {
			e.logger.Warn("telemetry.nats_publish_failed",
				zap.String("session", rfq.SessionID),
				zap.Error(err))
		}
	}

	row := store.AuctionRoundRow{
		SessionID:  rfq.SessionID,
		ChainID:    e.chain.ChainID,
		InToken:    rfq.InToken,
		OutToken:   rfq.OutToken,
		InAmount:   rfq.InAmount,
		OutAmount:  result.OutAmount,
		Winner:     result.Exchange,
		Solvers:    len(result.Quotes),
		InTokenUsd: result.InTokenUsd,
		ElapsedMs:  result.Elapsed.Milliseconds(),
	}
	if err := e.store.RecordAuctionRound(ctx, row); err != nil {
		e.logger.Warn("telemetry.round_insert_failed",
			zap.String("session", rfq.SessionID),
			zap.Error(err))
		metrics.PublishFailed("postgres")
	}
}
