package quote

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swapflow/auctioneer/internal/solver"
	"github.com/swapflow/auctioneer/pkg/config"
	"github.com/swapflow/auctioneer/pkg/model"
)

// SolverCaller speaks the solver wire protocol.
type SolverCaller interface {
	Quote(ctx context.Context, s *solver.Solver, req solver.Request) (solver.Result, error)
}

// TokenSource resolves ERC-20 metadata.
type TokenSource interface {
	Resolve(ctx context.Context, address string) model.TokenInfo
	IsNative(address string) bool
}

// PriceSource resolves USD token prices.
type PriceSource interface {
	PriceUsd(ctx context.Context, token model.TokenInfo) (float64, error)
}

// GasPricer provides the current native gas price in wei.
type GasPricer interface {
	GasPrice(ctx context.Context) (*big.Int, error)
}

// ScoreSource provides solver reliability scores.
type ScoreSource interface {
	Score(ctx context.Context, chainID int64, solverName string) float64
}

// OrderBuilder turns an adjusted amount into a signed-order package.
type OrderBuilder interface {
	Build(rfq model.RFQ, solverOut, gasOut decimal.Decimal, solverName string) (model.OrderResult, error)
}

// CredentialSource resolves per-solver API keys. It may return an error for
// solvers without provisioned secrets; those dispatch unauthenticated.
type CredentialSource interface {
	APIKey(ctx context.Context, solverName string) (apiKey, filler string, err error)
}

// Normalizer runs the per-solver pipeline: call the solver, adjust the raw
// amount for execution gas, score the solver, and build the Dutch order.
// Every failure becomes a typed error Quote; the batch never aborts because
// one solver misbehaved.
type Normalizer struct {
	logger   *zap.Logger
	chain    *config.Chain
	registry *solver.Registry
	caller   SolverCaller
	tokens   TokenSource
	prices   PriceSource
	gas      GasPricer
	scores   ScoreSource
	builder  OrderBuilder
	creds    CredentialSource
}

func NewNormalizer(
	logger *zap.Logger,
	chain *config.Chain,
	registry *solver.Registry,
	caller SolverCaller,
	tokens TokenSource,
	prices PriceSource,
	gas GasPricer,
	scores ScoreSource,
	builder OrderBuilder,
	creds CredentialSource,
) *Normalizer {
	return &Normalizer{
		logger:   logger,
		chain:    chain,
		registry: registry,
		caller:   caller,
		tokens:   tokens,
		prices:   prices,
		gas:      gas,
		scores:   scores,
		builder:  builder,
		creds:    creds,
	}
}

func baseQuote(rfq model.RFQ, s *solver.Solver) model.Quote {
	return model.Quote{
		User:      rfq.User,
		InToken:   rfq.InToken,
		OutToken:  rfq.OutToken,
		InAmount:  rfq.InAmount,
		SessionID: rfq.SessionID,
		Exchange:  s.Name,
		OutAmount: "0",
	}
}

func errorQuote(rfq model.RFQ, s *solver.Solver, err error, elapsed time.Duration) model.Quote {
	q := baseQuote(rfq, s)
	q.Elapsed = elapsed

	var ae *model.AuctionError
	if errors.As(err, &ae) {
		q.Error = ae.Code
	} else {
		q.Error = model.ErrGeneralError
	}
	return q
}

func (n *Normalizer) request(ctx context.Context, s *solver.Solver, rfq model.RFQ, baseline string, lite bool) solver.Request {
	apiKey, filler, err := n.creds.APIKey(ctx, s.Name)
	if err != nil {
		n.logger.Debug("quote.no_credentials",
			zap.String("solver", s.Name),
			zap.Error(err))
	}
	if filler == "" {
		filler = n.chain.Executor
	}
	return solver.Request{
		RFQ:       rfq,
		Network:   n.chain.Name,
		Dex:       n.chain.Dex,
		Filler:    filler,
		APIKey:    apiKey,
		SessionID: rfq.SessionID,
		Extras:    solver.FormatBaseline(s, baseline),
		Lite:      lite,
	}
}

// Quote runs the pipeline for one solver. baseline, when non-empty, is
// forwarded to offchain solvers that accept a reference price. withData
// requests executable call data over the firm-bid endpoint; without it,
// offchain solvers are asked over their discovery endpoint. adjustGas enables
// the gas reduction and its affordability guards; with it off the order is
// built against the raw solver amount and gasCostOutputToken stays zero.
func (n *Normalizer) Quote(ctx context.Context, s *solver.Solver, rfq model.RFQ, baseline string, withData, adjustGas bool) model.Quote {
	start := time.Now()

	// Token metadata resolves concurrently with the solver call; both are
	// needed before gas conversion.
	outInfoCh := make(chan model.TokenInfo, 1)
	go func() { outInfoCh <- n.tokens.Resolve(ctx, rfq.OutToken) }()

	lite := !withData && s.Kind == solver.KindOffchain
	res, err := n.caller.Quote(ctx, s, n.request(ctx, s, rfq, baseline, lite))
	if err != nil {
		return errorQuote(rfq, s, err, time.Since(start))
	}
	outInfo := <-outInfoCh

	solverOut, derr := decimal.NewFromString(res.OutAmount)
	if derr != nil || !solverOut.IsPositive() {
		return errorQuote(rfq, s, model.NewAuctionError(model.ErrNoRoute, rfq.SessionID, "solver", s.Name), time.Since(start))
	}

	var gasOut, gasUnits decimal.Decimal
	if adjustGas {
		route := solver.RouteGas{Raw: res.Raw, SolverGasUnits: res.SolverGasUnits, SwapGasUnits: s.SwapGasUnits}
		var gerr error
		gasOut, gasUnits, gerr = n.adjustGas(ctx, s, rfq, outInfo, solverOut, route)
		if gerr != nil {
			return errorQuote(rfq, s, gerr, time.Since(start))
		}
	}

	q := baseQuote(rfq, s)
	q.GasUnits = gasUnits
	q.GasCostOutputToken = gasOut.Round(0).String()
	q.Raw = res.Raw
	q.To = res.To
	q.Data = res.Data
	q.SolverID = res.SolverID
	q.SimulateAmountOut = res.SimulateOutAmount
	q.Score = n.scores.Score(ctx, n.chain.ChainID, s.Name)

	if price, perr := n.prices.PriceUsd(ctx, outInfo); perr == nil {
		q.OutTokenPrice = price
	}

	built, berr := n.builder.Build(rfq, solverOut, gasOut, s.Name)
	if berr != nil {
		n.logger.Warn("quote.order_build_failed",
			zap.String("session", rfq.SessionID),
			zap.String("solver", s.Name),
			zap.Error(berr))
		eq := errorQuote(rfq, s, model.NewAuctionError(model.ErrGeneralError, rfq.SessionID, "reason", berr.Error()), time.Since(start))
		eq.Score = q.Score
		return eq
	}

	q.OutAmount = built.UserOutAmount.String()
	q.MinAmountOut = built.UserMinOutAmount.String()
	q.SerializedOrder = built.SerializedOrder
	q.PermitData = built.PermitData
	q.Elapsed = time.Since(start)
	return q
}

// QuoteLite skips gas adjustment and order building, returning the solver's
// raw amount. Used only for the last-look round, where the designated solver
// competes on raw price.
func (n *Normalizer) QuoteLite(ctx context.Context, s *solver.Solver, rfq model.RFQ, baseline string) model.Quote {
	start := time.Now()

	res, err := n.caller.Quote(ctx, s, n.request(ctx, s, rfq, baseline, true))
	if err != nil {
		return errorQuote(rfq, s, err, time.Since(start))
	}

	q := baseQuote(rfq, s)
	q.OutAmount = res.OutAmount
	q.Raw = res.Raw
	q.To = res.To
	q.Data = res.Data
	q.SolverID = res.SolverID
	q.SimulateAmountOut = res.SimulateOutAmount
	q.Elapsed = time.Since(start)
	return q
}

// adjustGas converts the solver's own execution-gas estimate into output
// token units and applies the affordability guards.
func (n *Normalizer) adjustGas(ctx context.Context, s *solver.Solver, rfq model.RFQ, outInfo model.TokenInfo, solverOut decimal.Decimal, route solver.RouteGas) (decimal.Decimal, decimal.Decimal, error) {
	est, err := solver.ExtractGas(s.GasRule, route)
	if err != nil {
		n.logger.Warn("quote.gas_extract_failed",
			zap.String("session", rfq.SessionID),
			zap.String("solver", s.Name),
			zap.String("rule", s.GasRule),
			zap.Error(err))
		return decimal.Decimal{}, decimal.Decimal{}, model.NewAuctionError(model.ErrGeneralError, rfq.SessionID, "reason", "gas extraction failed")
	}

	var costNative decimal.Decimal
	gasUnits := est.Units
	if est.NativeDenominated {
		costNative = est.Units
	} else {
		gasUnits = est.Units.Add(decimal.NewFromInt(n.chain.BaseGasUnits))
		price, perr := n.gas.GasPrice(ctx)
		if perr != nil {
			return decimal.Decimal{}, decimal.Decimal{}, model.NewAuctionError(model.ErrGasCostOutputTokenZero, rfq.SessionID, "reason", "gas price unavailable")
		}
		costNative = gasUnits.Mul(decimal.NewFromBigInt(price, 0))
	}

	if n.chain.FixedGasCost != "" {
		if fixed, ferr := decimal.NewFromString(n.chain.FixedGasCost); ferr == nil {
			costNative = fixed
		}
	}
	if n.chain.CustomGasFactor > 0 {
		costNative = costNative.Mul(decimal.NewFromFloat(n.chain.CustomGasFactor))
	}

	gasOut, cerr := n.toOutputToken(ctx, rfq, outInfo, costNative)
	if cerr != nil {
		return decimal.Decimal{}, decimal.Decimal{}, cerr
	}

	if !gasOut.IsPositive() {
		// A free swap means the pricing path failed, not that gas is free.
		return decimal.Decimal{}, decimal.Decimal{}, model.NewAuctionError(model.ErrGasCostOutputTokenZero, rfq.SessionID, "solver", s.Name)
	}
	if gasOut.Div(solverOut).GreaterThan(decimal.NewFromFloat(n.chain.OutAmountGasThreshold)) {
		return decimal.Decimal{}, decimal.Decimal{}, model.NewAuctionError(model.ErrGasCostTooHigh, rfq.SessionID,
			"solver", s.Name,
			"gasCostOutputToken", gasOut.Round(0).String(),
			"outAmount", solverOut.Round(0).String())
	}
	return gasOut, gasUnits, nil
}

// toOutputToken converts a native-wei cost into output-token base units.
func (n *Normalizer) toOutputToken(ctx context.Context, rfq model.RFQ, outInfo model.TokenInfo, costNative decimal.Decimal) (decimal.Decimal, error) {
	out := strings.ToLower(rfq.OutToken)
	if n.tokens.IsNative(out) || out == strings.ToLower(n.chain.WrappedNative.Address) {
		return costNative, nil
	}

	nativeInfo := model.TokenInfo{
		Address:  n.chain.WrappedNative.Address,
		Symbol:   n.chain.WrappedNative.Symbol,
		Decimals: n.chain.WrappedNative.Decimals,
	}
	nativeUsd, nerr := n.prices.PriceUsd(ctx, nativeInfo)
	outUsd, oerr := n.prices.PriceUsd(ctx, outInfo)
	if nerr == nil && oerr == nil && outUsd > 0 {
		ratio := decimal.NewFromFloat(nativeUsd).Div(decimal.NewFromFloat(outUsd))
		scale := decimal.New(1, outInfo.Decimals-nativeInfo.Decimals)
		return costNative.Mul(ratio).Mul(scale), nil
	}

	// Oracle came up empty; ask the default pricing solver what the native
	// cost buys in output tokens.
	pricing := n.registry.DefaultPricing()
	if pricing == nil {
		return decimal.Decimal{}, model.NewAuctionError(model.ErrGasCostOutputTokenZero, rfq.SessionID, "reason", "no price path for gas conversion")
	}
	probe := model.RFQ{
		User:      rfq.User,
		InToken:   n.chain.WrappedNative.Address,
		OutToken:  rfq.OutToken,
		InAmount:  costNative.Round(0).String(),
		SessionID: rfq.SessionID,
	}
	res, err := n.caller.Quote(ctx, pricing, n.request(ctx, pricing, probe, "", true))
	if err != nil {
		return decimal.Decimal{}, model.NewAuctionError(model.ErrGasCostOutputTokenZero, rfq.SessionID, "reason", "gas conversion probe failed")
	}
	converted, derr := decimal.NewFromString(res.OutAmount)
	if derr != nil {
		return decimal.Decimal{}, model.NewAuctionError(model.ErrGasCostOutputTokenZero, rfq.SessionID, "reason", "gas conversion probe unparsable")
	}
	return converted, nil
}
