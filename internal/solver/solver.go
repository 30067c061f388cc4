package solver

import (
	"fmt"
	"strings"

	"github.com/swapflow/auctioneer/pkg/config"
)

// Kind distinguishes the two solver integration styles.
type Kind string

const (
	// KindOnchain solvers are public aggregator APIs quoted over their
	// open endpoints.
	KindOnchain Kind = "onchain"

	// KindOffchain solvers are market makers speaking the negotiated RFQ
	// protocol, and may receive a baseline price with the request.
	KindOffchain Kind = "offchain"
)

// Solver is one configured liquidity source on a chain.
type Solver struct {
	Name         string
	URL          string
	Kind         Kind
	Disabled     bool
	LastLookOnly bool

	// GasRule names the extraction rule for this solver's route payload.
	GasRule      string
	SwapGasUnits int64

	// BaselineParam, for offchain solvers, is the request key the reference
	// price travels under. Empty means the solver takes no baseline.
	BaselineParam string
}

// Registry holds the chain's solvers in configured order, which is also the
// dispatch order and the tiebreak order when ranked values are equal.
type Registry struct {
	ordered  []*Solver
	byName   map[string]*Solver
	lastLook *Solver
	pricing  *Solver
}

// BuildRegistry validates solver config against the gas-rule table and wires
// up the last-look and default-pricing designations. Construction fails fast
// on any unknown rule so misconfiguration surfaces at startup, not mid-quote.
func BuildRegistry(chain *config.Chain) (*Registry, error) {
	reg := &Registry{byName: make(map[string]*Solver, len(chain.Solvers))}

	for _, spec := range chain.Solvers {
		rule := spec.GasRule
		if rule == "" {
			rule = "generic"
		}
		if !KnownGasRule(rule) {
			return nil, fmt.Errorf("solver %s: unknown gas rule %q (known: %s)",
				spec.Name, rule, strings.Join(GasRuleNames(), ", "))
		}
		if rule == "fixed" && spec.SwapGasUnits <= 0 {
			return nil, fmt.Errorf("solver %s: fixed gas rule requires swapGasUnits", spec.Name)
		}

		s := &Solver{
			Name:          spec.Name,
			URL:           spec.URL,
			Kind:          Kind(spec.Kind),
			Disabled:      spec.Disabled,
			LastLookOnly:  spec.LastLookOnly,
			GasRule:       rule,
			SwapGasUnits:  spec.SwapGasUnits,
			BaselineParam: spec.BaselineParam,
		}
		reg.ordered = append(reg.ordered, s)
		reg.byName[s.Name] = s
	}

	if chain.LastLookSolver != "" {
		reg.lastLook = reg.byName[chain.LastLookSolver]
	}

	// The default pricing solver backs gas-cost conversion when no direct
	// native/output price is available: first enabled onchain solver wins.
	for _, s := range reg.ordered {
		if s.Kind == KindOnchain && !s.Disabled {
			reg.pricing = s
			break
		}
	}

	return reg, nil
}

// All returns the solvers in configured order.
func (r *Registry) All() []*Solver { return r.ordered }

// ByName returns the named solver, or nil.
func (r *Registry) ByName(name string) *Solver { return r.byName[name] }

// LastLook returns the designated last-look solver, or nil when the chain has
// none.
func (r *Registry) LastLook() *Solver { return r.lastLook }

// DefaultPricing returns the solver used for fallback price discovery, or
// nil when no enabled onchain solver exists.
func (r *Registry) DefaultPricing() *Solver { return r.pricing }

// Dispatchable returns the solvers eligible for the fan-out. The force list,
// when non-empty, narrows the set; disabled solvers never dispatch.
// Last-look-only solvers compete in the discovery wave but sit out the firm
// wave, where they are queried separately after ranking.
func (r *Registry) Dispatchable(force []string, includeLastLookOnly bool) []*Solver {
	forced := make(map[string]bool, len(force))
	for _, name := range force {
		forced[name] = true
	}

	var out []*Solver
	for _, s := range r.ordered {
		if s.Disabled {
			continue
		}
		if s.LastLookOnly && !includeLastLookOnly {
			continue
		}
		if len(forced) > 0 && !forced[s.Name] {
			continue
		}
		out = append(out, s)
	}
	return out
}
