package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// The chain registry replaces ad-hoc layered config merging with explicit,
// validated structs: file defaults are applied to every chain entry by
// applyDefaults, and nothing else mutates a Chain after LoadChains returns.

// Duration wraps time.Duration for YAML decoding ("6s", "250ms").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Token describes a chain-native or ERC-20 token.
type Token struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals int32  `yaml:"decimals"`
}

// BlockedToken is a deny-list entry. Reason selects the rejection code:
// "blocked", "governance", or "pay".
type BlockedToken struct {
	Address string `yaml:"address"`
	Reason  string `yaml:"reason"`
}

// SolverSpec declares one configured liquidity source.
//
// Kind "onchain" quotes synchronously against the shared public endpoint
// style; "offchain" requires the negotiated /quote endpoint and may take a
// baseline parameter in quote-phase and last-look requests.
type SolverSpec struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	Kind         string `yaml:"kind"`
	Disabled     bool   `yaml:"disabled"`
	GasRule      string `yaml:"gasRule"`
	SwapGasUnits int64  `yaml:"swapGasUnits"`
	LastLookOnly bool   `yaml:"lastLookOnly"`

	// BaselineParam is the request-extra key an offchain solver expects the
	// reference price under (e.g. "baselineOutAmount", "minOutAmount").
	BaselineParam string `yaml:"baselineParam"`
}

// Chain is the full auction configuration for one (chain, DEX deployment).
type Chain struct {
	ChainID int64  `yaml:"chainId"`
	Name    string `yaml:"name"` // chain name, e.g. "polygon"
	Dex     string `yaml:"dex"`  // deployment name, e.g. "quickswap"

	RPCURL       string `yaml:"rpcUrl"`
	RPCURLBackup string `yaml:"rpcUrlBackup"`

	Native        Token `yaml:"native"`
	WrappedNative Token `yaml:"wrappedNative"`

	Executor string `yaml:"executor"`
	Reactor  string `yaml:"reactor"`
	Treasury string `yaml:"treasury"`
	Permit2  string `yaml:"permit2"`

	BaseGasUnits          int64   `yaml:"baseGasUnits"`
	OutAmountGasThreshold float64 `yaml:"outAmountGasThreshold"`
	CustomGasFactor       float64 `yaml:"customGasFactor"`
	FixedGasCost          string  `yaml:"fixedGasCost"`

	MinDollarValue            float64 `yaml:"minDollarValue"`
	DefaultSlippage           float64 `yaml:"defaultSlippage"`
	MaxSlippage               float64 `yaml:"maxSlippage"`
	ExternalLiquiditySlippage float64 `yaml:"externalLiquiditySlippage"`

	OrderDurationSec    int64 `yaml:"orderDuration"`
	DecayStartOffsetSec int64 `yaml:"decayStartOffset"`
	DecayDurationSec    int64 `yaml:"decayDuration"`

	AuctionTimeout         Duration `yaml:"auctionTimeout"`
	AuctionWithDataTimeout Duration `yaml:"auctionWithDataTimeout"`

	BlockedTokens []BlockedToken `yaml:"blockedTokens"`
	StableTokens  []string       `yaml:"stableTokens"`

	ForceSolvers   []string     `yaml:"forceSolvers"`
	LastLookSolver string       `yaml:"lastLookSolver"`
	Solvers        []SolverSpec `yaml:"solvers"`
}

type chainDefaults struct {
	BaseGasUnits              int64    `yaml:"baseGasUnits"`
	OutAmountGasThreshold     float64  `yaml:"outAmountGasThreshold"`
	MinDollarValue            float64  `yaml:"minDollarValue"`
	DefaultSlippage           float64  `yaml:"defaultSlippage"`
	MaxSlippage               float64  `yaml:"maxSlippage"`
	ExternalLiquiditySlippage float64  `yaml:"externalLiquiditySlippage"`
	OrderDurationSec          int64    `yaml:"orderDuration"`
	DecayStartOffsetSec       int64    `yaml:"decayStartOffset"`
	DecayDurationSec          int64    `yaml:"decayDuration"`
	AuctionTimeout            Duration `yaml:"auctionTimeout"`
	AuctionWithDataTimeout    Duration `yaml:"auctionWithDataTimeout"`
	Permit2                   string   `yaml:"permit2"`
}

type chainsFile struct {
	Defaults chainDefaults `yaml:"defaults"`
	Chains   []*Chain      `yaml:"chains"`
}

// Registry holds the validated chain configurations keyed by chain id.
type Registry struct {
	chains map[int64]*Chain
}

// LoadChains reads, overlays, and validates the chain registry file.
func LoadChains(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chains file: %w", err)
	}
	return ParseChains(data)
}

// ParseChains decodes and validates a chain registry document.
func ParseChains(data []byte) (*Registry, error) {
	var file chainsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode chains file: %w", err)
	}
	if len(file.Chains) == 0 {
		return nil, fmt.Errorf("chains file declares no chains")
	}

	reg := &Registry{chains: make(map[int64]*Chain, len(file.Chains))}
	for _, ch := range file.Chains {
		applyDefaults(ch, file.Defaults)
		if err := ch.Validate(); err != nil {
			return nil, fmt.Errorf("chain %d (%s): %w", ch.ChainID, ch.Dex, err)
		}
		if _, dup := reg.chains[ch.ChainID]; dup {
			return nil, fmt.Errorf("chain %d declared twice", ch.ChainID)
		}
		reg.chains[ch.ChainID] = ch
	}
	return reg, nil
}

func applyDefaults(ch *Chain, d chainDefaults) {
	if ch.BaseGasUnits == 0 {
		ch.BaseGasUnits = d.BaseGasUnits
	}
	if ch.OutAmountGasThreshold == 0 {
		ch.OutAmountGasThreshold = d.OutAmountGasThreshold
	}
	if ch.MinDollarValue == 0 {
		ch.MinDollarValue = d.MinDollarValue
	}
	if ch.DefaultSlippage == 0 {
		ch.DefaultSlippage = d.DefaultSlippage
	}
	if ch.MaxSlippage == 0 {
		ch.MaxSlippage = d.MaxSlippage
	}
	if ch.ExternalLiquiditySlippage == 0 {
		ch.ExternalLiquiditySlippage = d.ExternalLiquiditySlippage
	}
	if ch.OrderDurationSec == 0 {
		ch.OrderDurationSec = d.OrderDurationSec
	}
	if ch.DecayStartOffsetSec == 0 {
		ch.DecayStartOffsetSec = d.DecayStartOffsetSec
	}
	if ch.DecayDurationSec == 0 {
		ch.DecayDurationSec = d.DecayDurationSec
	}
	if ch.AuctionTimeout == 0 {
		ch.AuctionTimeout = d.AuctionTimeout
	}
	if ch.AuctionWithDataTimeout == 0 {
		ch.AuctionWithDataTimeout = d.AuctionWithDataTimeout
	}
	if ch.Permit2 == "" {
		ch.Permit2 = d.Permit2
	}
}

// Validate checks structural and timing invariants. Gas-rule names are
// validated later when the solver registry is built, so an unknown rule still
// fails at startup rather than quoting nil.
func (c *Chain) Validate() error {
	if c.ChainID == 0 {
		return fmt.Errorf("chainId is required")
	}
	if c.Name == "" || c.Dex == "" {
		return fmt.Errorf("name and dex are required")
	}
	if c.Executor == "" || c.Reactor == "" || c.Treasury == "" {
		return fmt.Errorf("executor, reactor and treasury addresses are required")
	}
	if c.WrappedNative.Address == "" {
		return fmt.Errorf("wrappedNative is required")
	}
	if c.AuctionTimeout <= 0 || c.AuctionWithDataTimeout <= 0 {
		return fmt.Errorf("auction timeouts must be positive")
	}
	if c.MaxSlippage <= 0 || c.DefaultSlippage <= 0 {
		return fmt.Errorf("slippage defaults must be positive")
	}
	if c.DecayDurationSec <= 0 {
		return fmt.Errorf("decayDuration must be positive")
	}
	// decayStart < decayEnd <= deadline must hold by construction.
	if c.DecayStartOffsetSec+c.DecayDurationSec > c.OrderDurationSec {
		return fmt.Errorf("decay window %ds+%ds exceeds order duration %ds",
			c.DecayStartOffsetSec, c.DecayDurationSec, c.OrderDurationSec)
	}
	if len(c.Solvers) == 0 {
		return fmt.Errorf("no solvers configured")
	}
	seen := make(map[string]bool, len(c.Solvers))
	for _, s := range c.Solvers {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("solver entries need name and url")
		}
		if s.Kind != "onchain" && s.Kind != "offchain" {
			return fmt.Errorf("solver %s: kind must be onchain or offchain, got %q", s.Name, s.Kind)
		}
		if seen[s.Name] {
			return fmt.Errorf("solver %s declared twice", s.Name)
		}
		seen[s.Name] = true
	}
	if c.LastLookSolver != "" {
		spec, ok := c.solverSpec(c.LastLookSolver)
		if !ok {
			return fmt.Errorf("lastLookSolver %q is not a configured solver", c.LastLookSolver)
		}
		if spec.Kind != "offchain" {
			return fmt.Errorf("lastLookSolver %q must be offchain", c.LastLookSolver)
		}
	}
	for _, b := range c.BlockedTokens {
		switch b.Reason {
		case "blocked", "governance", "pay":
		default:
			return fmt.Errorf("blocked token %s: unknown reason %q", b.Address, b.Reason)
		}
	}
	return nil
}

func (c *Chain) solverSpec(name string) (SolverSpec, bool) {
	for _, s := range c.Solvers {
		if s.Name == name {
			return s, true
		}
	}
	return SolverSpec{}, false
}

// IsStable reports whether the token is on the chain's hard-pegged list, in
// which case the oracle short-circuits to price 1.
func (c *Chain) IsStable(token string) bool {
	token = strings.ToLower(token)
	for _, s := range c.StableTokens {
		if strings.ToLower(s) == token {
			return true
		}
	}
	return false
}

// BlockReason returns the deny-list reason for token, if any.
func (c *Chain) BlockReason(token string) (string, bool) {
	token = strings.ToLower(token)
	for _, b := range c.BlockedTokens {
		if strings.ToLower(b.Address) == token {
			return b.Reason, true
		}
	}
	return "", false
}

// Chain returns the configuration for chainID.
func (r *Registry) Chain(chainID int64) (*Chain, error) {
	ch, ok := r.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("chain %d is not supported", chainID)
	}
	return ch, nil
}

// ChainIDs lists the configured chain ids.
func (r *Registry) ChainIDs() []int64 {
	ids := make([]int64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	return ids
}
