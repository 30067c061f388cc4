package auction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swapflow/auctioneer/internal/metrics"
	"github.com/swapflow/auctioneer/internal/solver"
	"github.com/swapflow/auctioneer/pkg/config"
	"github.com/swapflow/auctioneer/pkg/model"
)

// Phase labels a round: price discovery or executable swap.
type Phase string

const (
	PhaseQuote Phase = "quote"
	PhaseSwap  Phase = "swap"
)

// collarFactor rejects quotes absurdly above the UI estimate. A price more
// than 1.5x the reference is stale or bogus, not a bargain.
var collarFactor = decimal.NewFromFloat(1.5)

// Quoter is the per-solver pipeline the orchestrator fans out to. withData
// requests executable call data; adjustGas enables the gas reduction and its
// guards.
type Quoter interface {
	Quote(ctx context.Context, s *solver.Solver, rfq model.RFQ, baseline string, withData, adjustGas bool) model.Quote
	QuoteLite(ctx context.Context, s *solver.Solver, rfq model.RFQ, baseline string) model.Quote
}

// TokenSource resolves token metadata for validation and audit formatting.
type TokenSource interface {
	Resolve(ctx context.Context, address string) model.TokenInfo
	IsNative(address string) bool
}

// ValueSource prices tokens in USD, best-effort.
type ValueSource interface {
	PriceUsd(ctx context.Context, token model.TokenInfo) (float64, error)
	DollarValue(ctx context.Context, token model.TokenInfo, amount string) float64
}

// Telemetry receives settled rounds for publishing, auditing and reliability
// reporting. Implementations must be safe for concurrent use; the
// orchestrator invokes it on a detached goroutine and never waits.
type Telemetry interface {
	RoundSettled(ctx context.Context, rfq model.RFQ, result *model.AuctionResult, phase string)
}

// Orchestrator runs the RFQ auction: validate, fan out to all eligible
// solvers under a per-call timeout race, filter, rank, and optionally let the
// designated last-look solver override the winner.
type Orchestrator struct {
	logger   *zap.Logger
	chain    *config.Chain
	registry *solver.Registry
	quoter   Quoter
	tokens   TokenSource
	values   ValueSource
	tele     Telemetry
}

func NewOrchestrator(
	logger *zap.Logger,
	chain *config.Chain,
	registry *solver.Registry,
	quoter Quoter,
	tokens TokenSource,
	values ValueSource,
	tele Telemetry,
) *Orchestrator {
	return &Orchestrator{
		logger:   logger,
		chain:    chain,
		registry: registry,
		quoter:   quoter,
		tokens:   tokens,
		values:   values,
		tele:     tele,
	}
}

// QuoteAuction runs the price-discovery round.
func (o *Orchestrator) QuoteAuction(ctx context.Context, rfq model.RFQ) (*model.AuctionResult, error) {
	return o.run(ctx, rfq, PhaseQuote)
}

// SwapAuction runs the executable round, ranked by solver reliability and
// subject to the last-look override.
func (o *Orchestrator) SwapAuction(ctx context.Context, rfq model.RFQ) (*model.AuctionResult, error) {
	return o.run(ctx, rfq, PhaseSwap)
}

func (o *Orchestrator) run(ctx context.Context, rfq model.RFQ, phase Phase) (*model.AuctionResult, error) {
	start := time.Now()

	rfq, err := o.validate(ctx, rfq)
	if err != nil {
		metrics.RoundSettled(string(phase), "rejected", time.Since(start))
		return nil, err
	}

	log := o.logger.With(
		zap.String("session", rfq.SessionID),
		zap.String("phase", string(phase)))

	quotes := o.dispatch(ctx, rfq, phase)

	errorTypes := make(map[string]string)
	var candidates []model.Quote
	for _, q := range quotes {
		metrics.SolverQuoted(q.Exchange, string(phase), q.Elapsed, q.Error)
		if q.Error != "" {
			errorTypes[q.Exchange] = q.Error
			continue
		}
		if isZero(q.OutAmount) {
			errorTypes[q.Exchange] = model.ErrNoRoute
			continue
		}
		candidates = append(candidates, q)
	}

	survivors := o.filter(rfq, candidates, phase, errorTypes)
	if len(survivors) == 0 {
		// An empty error map means nothing even attempted to answer; any
		// recorded error means answers existed but all were rejected.
		code := model.ErrSwapAuctionFailed
		outcome := "all_filtered"
		if phase == PhaseQuote {
			code = model.ErrQuoteAuctionFailed
		}
		if len(errorTypes) == 0 {
			code = model.ErrNoResults
			outcome = "no_results"
			if phase == PhaseQuote {
				code = model.ErrQuoteNoResults
			}
		}
		log.Warn("auction.no_survivors", zap.Any("errors", errorTypes))
		metrics.RoundSettled(string(phase), outcome, time.Since(start))
		return nil, &model.AuctionError{Code: code, SessionID: rfq.SessionID, ErrorData: errorTypes}
	}

	o.rank(survivors, phase)
	winner := survivors[0]

	if phase == PhaseSwap {
		if replaced, ok := o.lastLook(ctx, rfq, winner); ok {
			log.Info("auction.last_look_override",
				zap.String("previous", winner.Exchange),
				zap.String("winner", replaced.Exchange))
			winner = replaced
		}
	}

	result := &model.AuctionResult{
		Quote:             winner,
		Quotes:            quotes,
		UpdatedErrorTypes: errorTypes,
		AuctionData:       o.auctionData(ctx, rfq, quotes),
	}
	inInfo := o.tokens.Resolve(ctx, rfq.InToken)
	outInfo := o.tokens.Resolve(ctx, rfq.OutToken)
	result.InTokenUsd = o.values.DollarValue(ctx, inInfo, rfq.InAmount)
	result.OutTokenUsd = o.values.DollarValue(ctx, outInfo, winner.OutAmount)

	log.Info("auction.settled",
		zap.String("winner", winner.Exchange),
		zap.String("outAmount", winner.OutAmount),
		zap.Int("quotes", len(quotes)),
		zap.Int("survivors", len(survivors)),
		zap.Duration("elapsed", time.Since(start)))

	metrics.AuctionWon(winner.Exchange, string(phase))
	metrics.RoundSettled(string(phase), "won", time.Since(start))

	if o.tele != nil {
		// Detached: publishing must never block or fail the response.
		go o.tele.RoundSettled(context.WithoutCancel(ctx), rfq, result, string(phase))
	}
	return result, nil
}

// validate applies the pre-dispatch policy checks and fills defaults.
func (o *Orchestrator) validate(ctx context.Context, rfq model.RFQ) (model.RFQ, error) {
	if rfq.SessionID == "" {
		rfq.SessionID = uuid.NewString()
	}
	if rfq.Slippage == 0 {
		rfq.Slippage = o.chain.DefaultSlippage
	}
	if rfq.Slippage > o.chain.MaxSlippage {
		return rfq, model.NewAuctionError(model.ErrMaxSlippageExceeded, rfq.SessionID)
	}
	if o.tokens.IsNative(rfq.InToken) {
		return rfq, model.NewAuctionError(model.ErrNativeInNotSupported, rfq.SessionID)
	}
	for _, token := range []string{rfq.InToken, rfq.OutToken} {
		if reason, blocked := o.chain.BlockReason(token); blocked {
			return rfq, model.NewAuctionError(blockCode(reason), rfq.SessionID, "token", token)
		}
	}
	if !rfq.HasUIReference() {
		// No baseline to trust, so the external-liquidity tolerance governs.
		rfq.Slippage = o.chain.ExternalLiquiditySlippage
	}
	if o.chain.MinDollarValue > 0 {
		inInfo := o.tokens.Resolve(ctx, rfq.InToken)
		value := o.values.DollarValue(ctx, inInfo, rfq.InAmount)
		// value 0 means the oracle had no answer; the guard is best-effort.
		if value > 0 && value < o.chain.MinDollarValue {
			return rfq, model.NewAuctionError(model.ErrBelowDollarThreshold, rfq.SessionID)
		}
	}
	return rfq, nil
}

func blockCode(reason string) string {
	switch reason {
	case "governance":
		return model.ErrGovernanceTokenBlocked
	case "pay":
		return model.ErrPayNotSupported
	default:
		return model.ErrTokenBlocked
	}
}

// dispatch fans the RFQ out to every eligible solver and waits for the whole
// batch. Each call races a timer; a late solver's answer is discarded, not
// cancelled, trading duplicate outbound work for a simpler pipeline.
func (o *Orchestrator) dispatch(ctx context.Context, rfq model.RFQ, phase Phase) []model.Quote {
	withData := phase == PhaseSwap
	solvers := o.registry.Dispatchable(o.chain.ForceSolvers, !withData)
	timeout := o.chain.AuctionTimeout.Std()
	if withData {
		timeout = o.chain.AuctionWithDataTimeout.Std()
	}

	// Only the discovery wave carries a baseline; the firm wave runs clean
	// and the last-look round passes the winning price instead.
	baseline := ""
	if phase == PhaseQuote && rfq.HasUIReference() {
		baseline = quoteBaseline(rfq)
	}

	results := make([]model.Quote, len(solvers))
	var wg sync.WaitGroup
	for i, s := range solvers {
		wg.Add(1)
		go func(i int, s *solver.Solver) {
			defer wg.Done()
			results[i] = o.race(ctx, s, rfq, timeout, func(callCtx context.Context) model.Quote {
				return o.quoter.Quote(callCtx, s, rfq, baseline, withData, !withData)
			})
		}(i, s)
	}
	wg.Wait()
	return results
}

// quoteBaseline derives the discovery-round reference price handed to
// negotiated solvers: the UI amount padded by slippage, shaved 2%.
func quoteBaseline(rfq model.RFQ) string {
	ui, err := decimal.NewFromString(rfq.OutAmount)
	if err != nil || !ui.IsPositive() {
		return ""
	}
	padded := ui.Mul(decimal.NewFromFloat(1 + rfq.Slippage/100))
	return padded.Mul(decimal.NewFromFloat(0.98)).Round(0).String()
}

// race runs call against a timer. The call keeps the parent context so it is
// not force-cancelled when the timer wins; its eventual result is dropped.
func (o *Orchestrator) race(ctx context.Context, s *solver.Solver, rfq model.RFQ, timeout time.Duration, call func(context.Context) model.Quote) model.Quote {
	done := make(chan model.Quote, 1)
	start := time.Now()
	go func() { done <- call(context.WithoutCancel(ctx)) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case q := <-done:
		return q
	case <-timer.C:
		o.logger.Debug("auction.solver_timed_out",
			zap.String("session", rfq.SessionID),
			zap.String("solver", s.Name),
			zap.Duration("timeout", timeout))
		q := model.Quote{
			User:      rfq.User,
			InToken:   rfq.InToken,
			OutToken:  rfq.OutToken,
			InAmount:  rfq.InAmount,
			SessionID: rfq.SessionID,
			Exchange:  s.Name,
			OutAmount: "0",
			Error:     model.ErrTimeout,
			Elapsed:   time.Since(start),
		}
		return q
	}
}

// filter applies the phase's rejection rules, recording the reason for every
// dropped quote.
func (o *Orchestrator) filter(rfq model.RFQ, candidates []model.Quote, phase Phase, errorTypes map[string]string) []model.Quote {
	var ui decimal.Decimal
	collar := rfq.HasUIReference()
	if collar {
		var err error
		ui, err = decimal.NewFromString(rfq.OutAmount)
		if err != nil || !ui.IsPositive() {
			collar = false
		}
	}

	var out []model.Quote
	for _, q := range candidates {
		if phase == PhaseQuote && isZero(q.SimulateAmountOut) && q.SimulateAmountOut != "" {
			errorTypes[q.Exchange] = model.ErrNoRoute
			continue
		}
		if collar {
			amount, err := decimal.NewFromString(q.OutAmount)
			if err != nil {
				errorTypes[q.Exchange] = model.ErrGeneralError
				continue
			}
			if amount.GreaterThanOrEqual(ui.Mul(collarFactor)) {
				o.logger.Warn("auction.collar_reject",
					zap.String("session", rfq.SessionID),
					zap.String("solver", q.Exchange),
					zap.String("outAmount", q.OutAmount),
					zap.String("uiAmount", rfq.OutAmount))
				errorTypes[q.Exchange] = model.ErrGeneralError
				continue
			}
		}
		out = append(out, q)
	}
	return out
}

// rank orders survivors best-first: raw price in quote-phase, reliability in
// swap-phase. Stable sort keeps configured solver order on ties.
func (o *Orchestrator) rank(quotes []model.Quote, phase Phase) {
	if phase == PhaseQuote {
		sort.SliceStable(quotes, func(i, j int) bool {
			a, aerr := decimal.NewFromString(quotes[i].OutAmount)
			b, berr := decimal.NewFromString(quotes[j].OutAmount)
			if aerr != nil || berr != nil {
				return berr != nil && aerr == nil
			}
			return a.GreaterThan(b)
		})
		return
	}
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].Score > quotes[j].Score
	})
}

// lastLook gives the chain's designated solver one shot at the round after
// seeing the best competing price. A non-error answer replaces the winner
// unconditionally; the plausibility collar is deliberately not re-applied.
func (o *Orchestrator) lastLook(ctx context.Context, rfq model.RFQ, winner model.Quote) (model.Quote, bool) {
	ll := o.registry.LastLook()
	if ll == nil || ll.Disabled {
		return model.Quote{}, false
	}

	q := o.race(ctx, ll, rfq, o.chain.AuctionWithDataTimeout.Std(), func(callCtx context.Context) model.Quote {
		return o.quoter.QuoteLite(callCtx, ll, rfq, winner.OutAmount)
	})
	if q.Error != "" || isZero(q.OutAmount) {
		return model.Quote{}, false
	}
	return q, true
}

// auctionData builds the per-quote audit entries with human-readable amounts.
func (o *Orchestrator) auctionData(ctx context.Context, rfq model.RFQ, quotes []model.Quote) []model.AuctionEntry {
	outInfo := o.tokens.Resolve(ctx, rfq.OutToken)
	entries := make([]model.AuctionEntry, 0, len(quotes))
	for _, q := range quotes {
		entry := model.AuctionEntry{
			Exchange:          q.Exchange,
			AmountOut:         q.OutAmount,
			AmountOutF:        formatUnits(q.OutAmount, outInfo.Decimals),
			GasCost:           q.GasCostOutputToken,
			GasCostF:          formatUnits(q.GasCostOutputToken, outInfo.Decimals),
			GasUnits:          q.GasUnits.String(),
			Elapsed:           q.Elapsed.Seconds(),
			SimulateAmountOut: q.SimulateAmountOut,
		}
		entries = append(entries, entry)
	}
	return entries
}

func formatUnits(amount string, decimals int32) string {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return ""
	}
	return d.Shift(-decimals).String()
}

func isZero(amount string) bool {
	if amount == "" {
		return true
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return true
	}
	return !d.IsPositive()
}
