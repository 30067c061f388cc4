package auction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/swapflow/auctioneer/internal/solver"
	"github.com/swapflow/auctioneer/pkg/config"
	"github.com/swapflow/auctioneer/pkg/model"
)

const nativeAddr = "0x0000000000000000000000000000000000000000"

type quoterCall struct {
	solver    string
	rfq       model.RFQ
	baseline  string
	withData  bool
	adjustGas bool
}

type fakeQuoter struct {
	mu       sync.Mutex
	quotes   map[string]func(rfq model.RFQ) model.Quote
	lite     map[string]func(rfq model.RFQ, baseline string) model.Quote
	calls    []quoterCall
	liteBase []string
}

func (f *fakeQuoter) Quote(_ context.Context, s *solver.Solver, rfq model.RFQ, baseline string, withData, adjustGas bool) model.Quote {
	f.mu.Lock()
	f.calls = append(f.calls, quoterCall{solver: s.Name, rfq: rfq, baseline: baseline, withData: withData, adjustGas: adjustGas})
	fn := f.quotes[s.Name]
	f.mu.Unlock()
	if fn == nil {
		return model.Quote{Exchange: s.Name, SessionID: rfq.SessionID, OutAmount: "0", Error: model.ErrNoRoute}
	}
	return fn(rfq)
}

func (f *fakeQuoter) QuoteLite(_ context.Context, s *solver.Solver, rfq model.RFQ, baseline string) model.Quote {
	f.mu.Lock()
	f.liteBase = append(f.liteBase, baseline)
	fn := f.lite[s.Name]
	f.mu.Unlock()
	if fn == nil {
		return model.Quote{Exchange: s.Name, SessionID: rfq.SessionID, OutAmount: "0", Error: model.ErrNoRoute}
	}
	return fn(rfq, baseline)
}

type fakeTokenSource struct{}

func (fakeTokenSource) Resolve(_ context.Context, address string) model.TokenInfo {
	return model.TokenInfo{Address: address, Symbol: "TKN", Decimals: 6}
}

func (fakeTokenSource) IsNative(address string) bool { return address == nativeAddr }

type fakeValues struct {
	dollar func(amount string) float64
}

func (fakeValues) PriceUsd(context.Context, model.TokenInfo) (float64, error) { return 1, nil }

func (f *fakeValues) DollarValue(_ context.Context, _ model.TokenInfo, amount string) float64 {
	if f.dollar == nil {
		return 0
	}
	return f.dollar(amount)
}

type settledRound struct {
	rfq    model.RFQ
	result *model.AuctionResult
	phase  string
}

type fakeTelemetry struct {
	ch chan settledRound
}

func (f *fakeTelemetry) RoundSettled(_ context.Context, rfq model.RFQ, result *model.AuctionResult, phase string) {
	f.ch <- settledRound{rfq: rfq, result: result, phase: phase}
}

func auctionChain() *config.Chain {
	return &config.Chain{
		ChainID:                   137,
		Name:                      "polygon",
		Dex:                       "quickswap",
		Executor:                  "0xexec",
		Reactor:                   "0xreactor",
		Treasury:                  "0xtreasury",
		DefaultSlippage:           0.5,
		MaxSlippage:               5,
		ExternalLiquiditySlippage: 1.5,
		AuctionTimeout:            config.Duration(150 * time.Millisecond),
		AuctionWithDataTimeout:    config.Duration(150 * time.Millisecond),
		BlockedTokens: []config.BlockedToken{
			{Address: "0xblocked", Reason: "blocked"},
			{Address: "0xgov", Reason: "governance"},
			{Address: "0xpay", Reason: "pay"},
		},
		Solvers: []config.SolverSpec{
			{Name: "alpha", URL: "http://alpha", Kind: "onchain"},
			{Name: "beta", URL: "http://beta", Kind: "onchain"},
			{Name: "maker", URL: "http://maker", Kind: "offchain", LastLookOnly: true},
		},
		LastLookSolver: "maker",
	}
}

func newOrchestrator(t *testing.T, chain *config.Chain, q *fakeQuoter, values *fakeValues) (*Orchestrator, *fakeTelemetry) {
	t.Helper()
	reg, err := solver.BuildRegistry(chain)
	require.NoError(t, err)
	tele := &fakeTelemetry{ch: make(chan settledRound, 1)}
	return NewOrchestrator(zap.NewNop(), chain, reg, q, fakeTokenSource{}, values, tele), tele
}

func auctionRFQ() model.RFQ {
	return model.RFQ{
		User:      "0xuser",
		InToken:   "0xin",
		OutToken:  "0xout",
		InAmount:  "1000000",
		OutAmount: "100",
		SessionID: "s-1",
		Slippage:  0.5,
	}
}

func priced(name, out string) func(model.RFQ) model.Quote {
	return func(rfq model.RFQ) model.Quote {
		return model.Quote{Exchange: name, SessionID: rfq.SessionID, OutAmount: out}
	}
}

func scored(name, out string, score float64) func(model.RFQ) model.Quote {
	return func(rfq model.RFQ) model.Quote {
		return model.Quote{Exchange: name, SessionID: rfq.SessionID, OutAmount: out, Score: score}
	}
}

func errored(name, code string) func(model.RFQ) model.Quote {
	return func(rfq model.RFQ) model.Quote {
		return model.Quote{Exchange: name, SessionID: rfq.SessionID, OutAmount: "0", Error: code}
	}
}

func awaitTelemetry(t *testing.T, tele *fakeTelemetry) settledRound {
	t.Helper()
	select {
	case s := <-tele.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("telemetry was never notified")
		return settledRound{}
	}
}

func auctionCode(t *testing.T, err error) *model.AuctionError {
	t.Helper()
	var ae *model.AuctionError
	require.ErrorAs(t, err, &ae)
	return ae
}

func TestValidationRejections(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(rfq *model.RFQ)
		dollar   func(string) float64
		minValue float64
		wantCode string
	}{
		{
			name:     "slippage above ceiling",
			mutate:   func(rfq *model.RFQ) { rfq.Slippage = 6 },
			wantCode: model.ErrMaxSlippageExceeded,
		},
		{
			name:     "native input token",
			mutate:   func(rfq *model.RFQ) { rfq.InToken = nativeAddr },
			wantCode: model.ErrNativeInNotSupported,
		},
		{
			name:     "deny listed input",
			mutate:   func(rfq *model.RFQ) { rfq.InToken = "0xblocked" },
			wantCode: model.ErrTokenBlocked,
		},
		{
			name:     "governance token output",
			mutate:   func(rfq *model.RFQ) { rfq.OutToken = "0xGOV" },
			wantCode: model.ErrGovernanceTokenBlocked,
		},
		{
			name:     "pay token output",
			mutate:   func(rfq *model.RFQ) { rfq.OutToken = "0xpay" },
			wantCode: model.ErrPayNotSupported,
		},
		{
			name:     "below dollar threshold",
			mutate:   func(rfq *model.RFQ) {},
			dollar:   func(string) float64 { return 5 },
			minValue: 10,
			wantCode: model.ErrBelowDollarThreshold,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chain := auctionChain()
			chain.MinDollarValue = tc.minValue
			q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
				"alpha": priced("alpha", "100"),
			}}
			o, _ := newOrchestrator(t, chain, q, &fakeValues{dollar: tc.dollar})

			rfq := auctionRFQ()
			tc.mutate(&rfq)

			_, err := o.QuoteAuction(context.Background(), rfq)
			ae := auctionCode(t, err)
			assert.Equal(t, tc.wantCode, ae.Code)
			assert.NotEmpty(t, ae.SessionID)
			assert.Empty(t, q.calls, "no solver dispatch after a policy rejection")
		})
	}
}

func TestUnpricedOracleSkipsDollarGuard(t *testing.T) {
	chain := auctionChain()
	chain.MinDollarValue = 10
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": priced("alpha", "100"),
		"beta":  priced("beta", "120"),
	}}
	o, tele := newOrchestrator(t, chain, q, &fakeValues{dollar: func(string) float64 { return 0 }})

	res, err := o.QuoteAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)
	assert.Equal(t, "beta", res.Exchange)
	awaitTelemetry(t, tele)
}

func TestQuotePhaseWinsByOutAmount(t *testing.T) {
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": priced("alpha", "100"),
		"beta":  priced("beta", "120"),
		"maker": priced("maker", "110"),
	}}
	o, tele := newOrchestrator(t, auctionChain(), q, &fakeValues{dollar: func(string) float64 { return 42 }})

	res, err := o.QuoteAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)

	assert.Equal(t, "beta", res.Exchange)
	assert.Equal(t, "120", res.OutAmount)
	assert.Len(t, res.Quotes, 3)
	assert.Empty(t, res.UpdatedErrorTypes)
	assert.Len(t, res.AuctionData, 3)
	assert.Equal(t, 42.0, res.InTokenUsd)

	got := awaitTelemetry(t, tele)
	assert.Equal(t, string(PhaseQuote), got.phase)
	assert.Equal(t, "beta", got.result.Exchange)
}

func TestQuotePhaseCallContract(t *testing.T) {
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": priced("alpha", "100"),
		"beta":  priced("beta", "120"),
		"maker": priced("maker", "110"),
	}}
	o, tele := newOrchestrator(t, auctionChain(), q, &fakeValues{})

	_, err := o.QuoteAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)
	awaitTelemetry(t, tele)

	// 100 reference * 1.005 slippage pad * 0.98 = 98.49, rounded.
	require.Len(t, q.calls, 3)
	for _, call := range q.calls {
		assert.Equal(t, "98", call.baseline)
		assert.False(t, call.withData)
		assert.True(t, call.adjustGas)
	}
}

func TestSwapPhaseCallContract(t *testing.T) {
	chain := auctionChain()
	chain.LastLookSolver = ""
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": scored("alpha", "100", 0.5),
		"beta":  scored("beta", "120", 0.5),
	}}
	o, tele := newOrchestrator(t, chain, q, &fakeValues{})

	_, err := o.SwapAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)
	awaitTelemetry(t, tele)

	require.Len(t, q.calls, 2)
	for _, call := range q.calls {
		assert.Empty(t, call.baseline)
		assert.True(t, call.withData)
		assert.False(t, call.adjustGas)
	}
}

func TestDefaultSlippageApplied(t *testing.T) {
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": priced("alpha", "100"),
		"beta":  priced("beta", "120"),
	}}
	o, tele := newOrchestrator(t, auctionChain(), q, &fakeValues{})

	rfq := auctionRFQ()
	rfq.Slippage = 0
	_, err := o.QuoteAuction(context.Background(), rfq)
	require.NoError(t, err)
	awaitTelemetry(t, tele)

	require.NotEmpty(t, q.calls)
	assert.Equal(t, 0.5, q.calls[0].rfq.Slippage)
}

func TestCollarRejectsImplausiblePrice(t *testing.T) {
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": priced("alpha", "150"), // exactly 1.5x the reference of 100
		"beta":  priced("beta", "120"),
	}}
	o, tele := newOrchestrator(t, auctionChain(), q, &fakeValues{})

	res, err := o.QuoteAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)

	assert.Equal(t, "beta", res.Exchange)
	assert.Equal(t, model.ErrGeneralError, res.UpdatedErrorTypes["alpha"])
	awaitTelemetry(t, tele)
}

func TestCollarSkippedWithoutReference(t *testing.T) {
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": priced("alpha", "99999999"),
		"beta":  priced("beta", "120"),
	}}
	o, tele := newOrchestrator(t, auctionChain(), q, &fakeValues{})

	rfq := auctionRFQ()
	rfq.OutAmount = model.OutAmountRace
	res, err := o.QuoteAuction(context.Background(), rfq)
	require.NoError(t, err)

	assert.Equal(t, "alpha", res.Exchange)
	awaitTelemetry(t, tele)

	// Without a trustable baseline the external-liquidity tolerance governs
	// and no reference price is derived for negotiated solvers.
	require.NotEmpty(t, q.calls)
	assert.Equal(t, 1.5, q.calls[0].rfq.Slippage)
	assert.Empty(t, q.calls[0].baseline)
}

func TestQuotePhaseDropsFailedSimulation(t *testing.T) {
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": func(rfq model.RFQ) model.Quote {
			return model.Quote{Exchange: "alpha", SessionID: rfq.SessionID, OutAmount: "130", SimulateAmountOut: "0"}
		},
		"beta": priced("beta", "120"),
	}}
	o, tele := newOrchestrator(t, auctionChain(), q, &fakeValues{})

	res, err := o.QuoteAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)

	assert.Equal(t, "beta", res.Exchange)
	assert.Equal(t, model.ErrNoRoute, res.UpdatedErrorTypes["alpha"])
	awaitTelemetry(t, tele)
}

func TestSlowSolverTimesOutAndLoses(t *testing.T) {
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": func(rfq model.RFQ) model.Quote {
			time.Sleep(600 * time.Millisecond)
			return model.Quote{Exchange: "alpha", SessionID: rfq.SessionID, OutAmount: "500"}
		},
		"beta": priced("beta", "120"),
	}}
	o, tele := newOrchestrator(t, auctionChain(), q, &fakeValues{})

	res, err := o.QuoteAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)

	assert.Equal(t, "beta", res.Exchange)
	assert.Equal(t, model.ErrTimeout, res.UpdatedErrorTypes["alpha"])
	awaitTelemetry(t, tele)
}

func TestAllSolversErroredFailsAuction(t *testing.T) {
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": errored("alpha", model.ErrFetchFailed),
		"beta":  errored("beta", model.ErrNoRoute),
		"maker": errored("maker", model.ErrNoRoute),
	}}
	o, _ := newOrchestrator(t, auctionChain(), q, &fakeValues{})

	// Recorded errors mean the round ran and failed, not that nothing ran.
	_, err := o.QuoteAuction(context.Background(), auctionRFQ())
	ae := auctionCode(t, err)
	assert.Equal(t, model.ErrQuoteAuctionFailed, ae.Code)
	assert.Equal(t, model.ErrFetchFailed, ae.ErrorData["alpha"])
	assert.Equal(t, model.ErrNoRoute, ae.ErrorData["beta"])

	_, err = o.SwapAuction(context.Background(), auctionRFQ())
	assert.Equal(t, model.ErrSwapAuctionFailed, auctionCode(t, err).Code)
}

func TestEmptyDispatchIsNoResults(t *testing.T) {
	chain := auctionChain()
	chain.ForceSolvers = []string{"ghost"}
	q := &fakeQuoter{}
	o, _ := newOrchestrator(t, chain, q, &fakeValues{})

	_, err := o.QuoteAuction(context.Background(), auctionRFQ())
	ae := auctionCode(t, err)
	assert.Equal(t, model.ErrQuoteNoResults, ae.Code)
	assert.Empty(t, ae.ErrorData)

	_, err = o.SwapAuction(context.Background(), auctionRFQ())
	assert.Equal(t, model.ErrNoResults, auctionCode(t, err).Code)
}

func TestAllCandidatesFiltered(t *testing.T) {
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": priced("alpha", "151"),
		"beta":  priced("beta", "200"),
	}}
	chain := auctionChain()
	chain.LastLookSolver = ""
	o, _ := newOrchestrator(t, chain, q, &fakeValues{})

	_, err := o.QuoteAuction(context.Background(), auctionRFQ())
	assert.Equal(t, model.ErrQuoteAuctionFailed, auctionCode(t, err).Code)

	_, err = o.SwapAuction(context.Background(), auctionRFQ())
	assert.Equal(t, model.ErrSwapAuctionFailed, auctionCode(t, err).Code)
}

func TestSwapPhaseRanksByScore(t *testing.T) {
	chain := auctionChain()
	chain.LastLookSolver = ""
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": scored("alpha", "140", 0.2),
		"beta":  scored("beta", "120", 0.9),
	}}
	o, tele := newOrchestrator(t, chain, q, &fakeValues{})

	res, err := o.SwapAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)

	assert.Equal(t, "beta", res.Exchange, "reliability outranks raw price in the swap round")
	got := awaitTelemetry(t, tele)
	assert.Equal(t, string(PhaseSwap), got.phase)
}

func TestLastLookOverridesWinner(t *testing.T) {
	q := &fakeQuoter{
		quotes: map[string]func(model.RFQ) model.Quote{
			"alpha": scored("alpha", "140", 0.9),
			"beta":  scored("beta", "120", 0.2),
		},
		lite: map[string]func(model.RFQ, string) model.Quote{
			"maker": func(rfq model.RFQ, _ string) model.Quote {
				return model.Quote{Exchange: "maker", SessionID: rfq.SessionID, OutAmount: "145"}
			},
		},
	}
	o, tele := newOrchestrator(t, auctionChain(), q, &fakeValues{})

	res, err := o.SwapAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)

	assert.Equal(t, "maker", res.Exchange)
	assert.Equal(t, "145", res.OutAmount)
	require.Len(t, q.liteBase, 1)
	assert.Equal(t, "140", q.liteBase[0], "last look sees the best competing price")
	awaitTelemetry(t, tele)
}

func TestLastLookErrorKeepsWinner(t *testing.T) {
	q := &fakeQuoter{
		quotes: map[string]func(model.RFQ) model.Quote{
			"alpha": scored("alpha", "140", 0.9),
		},
		lite: map[string]func(model.RFQ, string) model.Quote{
			"maker": func(rfq model.RFQ, _ string) model.Quote {
				return model.Quote{Exchange: "maker", SessionID: rfq.SessionID, OutAmount: "0", Error: model.ErrFetchFailed}
			},
		},
	}
	o, tele := newOrchestrator(t, auctionChain(), q, &fakeValues{})

	res, err := o.SwapAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)
	assert.Equal(t, "alpha", res.Exchange)
	awaitTelemetry(t, tele)
}

func TestLastLookOnlySolverCompetesInDiscoveryWaveOnly(t *testing.T) {
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": scored("alpha", "100", 0.9),
		"beta":  scored("beta", "120", 0.2),
		"maker": scored("maker", "130", 0.1),
	}}
	o, tele := newOrchestrator(t, auctionChain(), q, &fakeValues{})

	res, err := o.QuoteAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)
	assert.Equal(t, "maker", res.Exchange, "last-look-only solvers still bid in the discovery round")
	assert.Len(t, res.Quotes, 3)
	awaitTelemetry(t, tele)

	res, err = o.SwapAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)
	assert.Len(t, res.Quotes, 2, "firm wave excludes last-look-only solvers")
	assert.Equal(t, "alpha", res.Exchange)
	awaitTelemetry(t, tele)
}

func TestForceSolversNarrowDispatch(t *testing.T) {
	chain := auctionChain()
	chain.ForceSolvers = []string{"alpha"}
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": priced("alpha", "100"),
		"beta":  priced("beta", "120"),
	}}
	o, tele := newOrchestrator(t, chain, q, &fakeValues{})

	res, err := o.QuoteAuction(context.Background(), auctionRFQ())
	require.NoError(t, err)

	assert.Equal(t, "alpha", res.Exchange)
	assert.Len(t, res.Quotes, 1)
	awaitTelemetry(t, tele)
}

func TestSessionIDGenerated(t *testing.T) {
	q := &fakeQuoter{quotes: map[string]func(model.RFQ) model.Quote{
		"alpha": priced("alpha", "100"),
		"beta":  priced("beta", "120"),
	}}
	o, tele := newOrchestrator(t, auctionChain(), q, &fakeValues{})

	rfq := auctionRFQ()
	rfq.SessionID = ""
	_, err := o.QuoteAuction(context.Background(), rfq)
	require.NoError(t, err)

	got := awaitTelemetry(t, tele)
	assert.NotEmpty(t, got.rfq.SessionID)
}
