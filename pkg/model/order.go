package model

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// OrderOutput is one leg of a Dutch order. StartAmount and EndAmount define
// the linear decay; a fixed output has StartAmount == EndAmount.
type OrderOutput struct {
	Token       string `json:"token"`
	Recipient   string `json:"recipient"`
	StartAmount string `json:"startAmount"`
	EndAmount   string `json:"endAmount"`
}

// OrderDescriptor describes a time-decaying (Dutch) order: the guaranteed
// payout to the swapper decays linearly from the start amounts to the end
// amounts between DecayStartTime and DecayEndTime.
//
// Output ordering is fixed: [0] gas reimbursement (fixed, to treasury),
// [1] primary user output (decaying), [2] optional savings output.
type OrderDescriptor struct {
	Reactor                      string        `json:"reactor"`
	Swapper                      string        `json:"swapper"`
	Nonce                        string        `json:"nonce"`
	ExclusiveFiller              string        `json:"exclusiveFiller"`
	ExclusivityOverrideBps       string        `json:"exclusivityOverrideBps"`
	AdditionalValidationContract string        `json:"additionalValidationContract"`
	AdditionalValidationData     string        `json:"additionalValidationData"`
	InputToken                   string        `json:"inputToken"`
	InputAmount                  string        `json:"inputAmount"`
	DecayStartTime               int64         `json:"decayStartTime"`
	DecayEndTime                 int64         `json:"decayEndTime"`
	Deadline                     int64         `json:"deadline"`
	Outputs                      []OrderOutput `json:"outputs"`
}

// Validate checks the decay-window invariant.
func (o *OrderDescriptor) Validate() error {
	if o.DecayStartTime >= o.DecayEndTime {
		return fmt.Errorf("decay start %d must precede decay end %d", o.DecayStartTime, o.DecayEndTime)
	}
	if o.DecayEndTime > o.Deadline {
		return fmt.Errorf("decay end %d exceeds deadline %d", o.DecayEndTime, o.Deadline)
	}
	if len(o.Outputs) < 2 {
		return fmt.Errorf("order needs gas and user outputs, got %d", len(o.Outputs))
	}
	return nil
}

// OrderResult is what the order builder hands back to the quote pipeline.
type OrderResult struct {
	UserOutAmount    decimal.Decimal
	UserMinOutAmount decimal.Decimal
	GasOutAmount     decimal.Decimal
	PermitData       json.RawMessage
	SerializedOrder  string
}
