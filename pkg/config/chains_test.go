package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validChains = `
defaults:
  baseGasUnits: 500000
  outAmountGasThreshold: 0.1
  minDollarValue: 30
  defaultSlippage: 0.3
  maxSlippage: 6.0
  externalLiquiditySlippage: 1.0
  orderDuration: 180
  decayStartOffset: 10
  decayDuration: 60
  auctionTimeout: 6s
  auctionWithDataTimeout: 8s
  permit2: "0xPERMIT2"

chains:
  - chainId: 137
    name: polygon
    dex: quickswap
    rpcUrl: https://polygon-rpc.example
    native:
      address: "0x0000000000000000000000000000000000000000"
      symbol: MATIC
      decimals: 18
    wrappedNative:
      address: "0xWMATIC"
      symbol: WMATIC
      decimals: 18
    executor: "0xEXEC"
    reactor: "0xREACTOR"
    treasury: "0xTREASURY"
    stableTokens: ["0xUSDC"]
    blockedTokens:
      - address: "0xBAD"
        reason: governance
    lastLookSolver: maker
    solvers:
      - name: paraswap
        url: https://paraswap.example
        kind: onchain
        gasRule: paraswap
      - name: maker
        url: https://maker.example
        kind: offchain
        gasRule: fixed
        swapGasUnits: 400000
        lastLookOnly: true
`

func TestParseChains_DefaultsApplied(t *testing.T) {
	reg, err := ParseChains([]byte(validChains))
	require.NoError(t, err)

	ch, err := reg.Chain(137)
	require.NoError(t, err)
	assert.Equal(t, int64(500000), ch.BaseGasUnits)
	assert.Equal(t, 6.0, ch.MaxSlippage)
	assert.Equal(t, 6*time.Second, ch.AuctionTimeout.Std())
	assert.Equal(t, 8*time.Second, ch.AuctionWithDataTimeout.Std())
	assert.Equal(t, "0xPERMIT2", ch.Permit2)
	assert.Equal(t, int64(180), ch.OrderDurationSec)
}

func TestParseChains_UnknownChain(t *testing.T) {
	reg, err := ParseChains([]byte(validChains))
	require.NoError(t, err)

	_, err = reg.Chain(1)
	assert.Error(t, err)
}

func TestParseChains_ChainOverridesDefaults(t *testing.T) {
	doc := validChains + `
  - chainId: 56
    name: bsc
    dex: pancakeswap
    rpcUrl: https://bsc.example
    maxSlippage: 3.0
    auctionTimeout: 4s
    native:
      address: "0x0000000000000000000000000000000000000000"
      symbol: BNB
      decimals: 18
    wrappedNative:
      address: "0xWBNB"
      symbol: WBNB
      decimals: 18
    executor: "0xEXEC"
    reactor: "0xREACTOR"
    treasury: "0xTREASURY"
    solvers:
      - name: pancake
        url: https://pancake.example
        kind: onchain
`
	reg, err := ParseChains([]byte(doc))
	require.NoError(t, err)

	ch, err := reg.Chain(56)
	require.NoError(t, err)
	assert.Equal(t, 3.0, ch.MaxSlippage)
	assert.Equal(t, 4*time.Second, ch.AuctionTimeout.Std())
	// Untouched fields still come from defaults.
	assert.Equal(t, int64(500000), ch.BaseGasUnits)
}

func TestChainValidate_Failures(t *testing.T) {
	base := func() *Chain {
		reg, err := ParseChains([]byte(validChains))
		require.NoError(t, err)
		ch, err := reg.Chain(137)
		require.NoError(t, err)
		cp := *ch
		return &cp
	}

	tests := []struct {
		name    string
		mutate  func(*Chain)
		wantErr string
	}{
		{
			name:    "decay window exceeds order duration",
			mutate:  func(c *Chain) { c.DecayDurationSec = 500 },
			wantErr: "exceeds order duration",
		},
		{
			name:    "no solvers",
			mutate:  func(c *Chain) { c.Solvers = nil },
			wantErr: "no solvers",
		},
		{
			name: "duplicate solver",
			mutate: func(c *Chain) {
				c.Solvers = append(c.Solvers, c.Solvers[0])
			},
			wantErr: "declared twice",
		},
		{
			name:    "bad solver kind",
			mutate:  func(c *Chain) { c.Solvers[0].Kind = "hybrid" },
			wantErr: "kind must be",
		},
		{
			name:    "last look must exist",
			mutate:  func(c *Chain) { c.LastLookSolver = "ghost" },
			wantErr: "not a configured solver",
		},
		{
			name:    "last look must be offchain",
			mutate:  func(c *Chain) { c.LastLookSolver = "paraswap" },
			wantErr: "must be offchain",
		},
		{
			name:    "unknown block reason",
			mutate:  func(c *Chain) { c.BlockedTokens[0].Reason = "spite" },
			wantErr: "unknown reason",
		},
		{
			name:    "missing treasury",
			mutate:  func(c *Chain) { c.Treasury = "" },
			wantErr: "treasury",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := base()
			// Deep-copy the slices the mutations touch.
			ch.Solvers = append([]SolverSpec(nil), ch.Solvers...)
			ch.BlockedTokens = append([]BlockedToken(nil), ch.BlockedTokens...)
			tt.mutate(ch)
			err := ch.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestChainHelpers(t *testing.T) {
	reg, err := ParseChains([]byte(validChains))
	require.NoError(t, err)
	ch, _ := reg.Chain(137)

	assert.True(t, ch.IsStable("0xusdc"))
	assert.False(t, ch.IsStable("0xWMATIC"))

	reason, blocked := ch.BlockReason("0xbad")
	assert.True(t, blocked)
	assert.Equal(t, "governance", reason)

	_, blocked = ch.BlockReason("0xgood")
	assert.False(t, blocked)
}

func TestParseChains_DuplicateChainID(t *testing.T) {
	doc := validChains + `
  - chainId: 137
    name: polygon
    dex: other
    rpcUrl: https://x.example
    native: {address: "0x0", symbol: M, decimals: 18}
    wrappedNative: {address: "0xW", symbol: WM, decimals: 18}
    executor: "0xE"
    reactor: "0xR"
    treasury: "0xT"
    solvers:
      - {name: s, url: https://s.example, kind: onchain}
`
	_, err := ParseChains([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}
