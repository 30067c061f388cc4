package solver

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// GasEstimate is what a gas rule extracts from a solver route.
type GasEstimate struct {
	// Units is the estimated execution gas in gas units, or, when
	// NativeDenominated is set, a cost already expressed in native wei.
	Units decimal.Decimal

	// NativeDenominated marks estimates that must not be multiplied by the
	// gas price again.
	NativeDenominated bool
}

// RouteGas is the gas-relevant slice of one solver route: the provider's
// rawData payload, the route-level estimate negotiated solvers report beside
// it, and the configured fixed estimate for rules that need one.
type RouteGas struct {
	Raw            json.RawMessage
	SolverGasUnits json.RawMessage
	SwapGasUnits   int64
}

// A gasRule digs the solver's own gas estimate out of its route.
type gasRule func(route RouteGas) (GasEstimate, error)

// Every aggregator reports execution gas somewhere different in its rawData.
// Rules are registered by name and referenced from solver config; an unknown
// name fails registry construction so a typo cannot silently quote free gas.
var gasRules = map[string]gasRule{
	"paraswap":  gasFromRaw("gasCost"),
	"odos":      gasFromRaw("gasEstimate"),
	"kyber":     gasFromRaw("routeSummary", "gas"),
	"pancake":   gasFromRaw("trade", "gasEstimate"),
	"openocean": gasFromRaw("data", "estimatedGas"),
	"generic":   gasFromRouteUnits,
	"rango":     gasFromRangoFee,
	"fixed":     gasFixed,
}

// KnownGasRule reports whether name is a registered extraction rule.
func KnownGasRule(name string) bool {
	_, ok := gasRules[name]
	return ok
}

// GasRuleNames lists the registered rules, for error messages.
func GasRuleNames() []string {
	names := make([]string, 0, len(gasRules))
	for name := range gasRules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExtractGas applies the named rule to the route.
func ExtractGas(rule string, route RouteGas) (GasEstimate, error) {
	fn, ok := gasRules[rule]
	if !ok {
		return GasEstimate{}, fmt.Errorf("unknown gas rule %q", rule)
	}
	return fn(route)
}

// gasFromRaw builds a rule that walks nested JSON objects along path inside
// rawData and parses the terminal value as a decimal, accepting both numbers
// and strings.
func gasFromRaw(path ...string) gasRule {
	return func(route RouteGas) (GasEstimate, error) {
		node := route.Raw
		for i, key := range path {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal(node, &obj); err != nil {
				return GasEstimate{}, fmt.Errorf("gas path %v: step %d is not an object: %w", path, i, err)
			}
			next, ok := obj[key]
			if !ok {
				return GasEstimate{}, fmt.Errorf("gas path %v: missing key %q", path, key)
			}
			node = next
		}
		units, err := decodeDecimal(node)
		if err != nil {
			return GasEstimate{}, fmt.Errorf("gas path %v: %w", path, err)
		}
		return GasEstimate{Units: units}, nil
	}
}

// gasFromRouteUnits reads the route-level solverGasUnits that negotiated
// solvers report outside rawData.
func gasFromRouteUnits(route RouteGas) (GasEstimate, error) {
	if len(route.SolverGasUnits) == 0 {
		return GasEstimate{}, fmt.Errorf("route reports no solverGasUnits")
	}
	units, err := decodeDecimal(route.SolverGasUnits)
	if err != nil {
		return GasEstimate{}, fmt.Errorf("solverGasUnits: %w", err)
	}
	return GasEstimate{Units: units}, nil
}

// gasFromRangoFee reads rawData.fee[1].amount, which rango reports already
// denominated in native wei.
func gasFromRangoFee(route RouteGas) (GasEstimate, error) {
	var payload struct {
		Fee []struct {
			Amount json.RawMessage `json:"amount"`
		} `json:"fee"`
	}
	if err := json.Unmarshal(route.Raw, &payload); err != nil {
		return GasEstimate{}, fmt.Errorf("rango fee payload: %w", err)
	}
	if len(payload.Fee) < 2 {
		return GasEstimate{}, fmt.Errorf("rango fee payload has %d entries, need 2", len(payload.Fee))
	}
	amount, err := decodeDecimal(payload.Fee[1].Amount)
	if err != nil {
		return GasEstimate{}, fmt.Errorf("rango fee amount: %w", err)
	}
	return GasEstimate{Units: amount, NativeDenominated: true}, nil
}

func gasFixed(route RouteGas) (GasEstimate, error) {
	if route.SwapGasUnits <= 0 {
		return GasEstimate{}, fmt.Errorf("fixed gas rule requires swapGasUnits > 0")
	}
	return GasEstimate{Units: decimal.NewFromInt(route.SwapGasUnits)}, nil
}

func decodeDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return decimal.NewFromString(asString)
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return decimal.Decimal{}, fmt.Errorf("value %s is neither string nor number", raw)
	}
	return decimal.NewFromString(asNumber.String())
}
