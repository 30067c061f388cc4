package order

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swapflow/auctioneer/pkg/config"
	"github.com/swapflow/auctioneer/pkg/model"
)

// minSlippageFloor keeps the decay window from collapsing when the user asks
// for near-zero slippage.
const minSlippageFloor = 0.1

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
	two     = decimal.NewFromInt(2)
)

// Builder turns a winning quote into a Dutch decay order: a gas reimbursement
// output paid to the treasury, a primary user output decaying from a slightly
// generous price down to the worst acceptable one, and, when the auction beat
// the UI estimate, a savings output returning 10% of the surplus.
type Builder struct {
	logger *zap.Logger
	chain  *config.Chain
	serial Serializer

	now func() time.Time
}

// Serializer produces the settlement-contract encoding and permit data for a
// descriptor.
type Serializer interface {
	Serialize(desc *model.OrderDescriptor) (string, error)
	PermitData(desc *model.OrderDescriptor) ([]byte, error)
}

func NewBuilder(logger *zap.Logger, chain *config.Chain, serial Serializer) *Builder {
	return &Builder{logger: logger, chain: chain, serial: serial, now: time.Now}
}

// Build computes the order for a solver's quote.
//
// External-liquidity mode (sentinel UI amounts "0"/"-1") derives the
// reference from the solver's own price reduced by the configured external
// slippage and the gas cost, since there is no independent baseline to trust.
func (b *Builder) Build(rfq model.RFQ, solverOut, gasOut decimal.Decimal, solverName string) (model.OrderResult, error) {
	external := !rfq.HasUIReference()

	uiAmount, err := decimal.NewFromString(rfq.OutAmount)
	if err != nil || external {
		uiAmount = decimal.Zero
	}
	if external {
		extSlip := decimal.NewFromFloat(b.chain.ExternalLiquiditySlippage)
		uiAmount = solverOut.Mul(hundred.Sub(extSlip)).Div(hundred).Sub(gasOut)
		b.logger.Warn("order.external_liquidity",
			zap.String("session", rfq.SessionID),
			zap.String("uiAmount", uiAmount.Round(0).String()),
			zap.String("solverOut", solverOut.Round(0).String()),
			zap.String("gasOut", gasOut.Round(0).String()))
	}

	slippage := rfq.Slippage
	if slippage < minSlippageFloor {
		slippage = minSlippageFloor
	}
	// effSlip is the fraction of the quoted price the user is guaranteed.
	effSlip := hundred.Sub(decimal.NewFromFloat(slippage)).Div(hundred)

	afterGas := solverOut.Sub(gasOut)
	if afterGas.IsNegative() {
		b.logger.Warn("order.gas_exceeds_out_amount",
			zap.String("session", rfq.SessionID),
			zap.String("solver", solverName),
			zap.String("solverOut", solverOut.Round(0).String()),
			zap.String("gasOut", gasOut.Round(0).String()))
		return model.OrderResult{}, fmt.Errorf("gas cost %s exceeds out amount %s", gasOut.Round(0), solverOut.Round(0))
	}

	startAmount := afterGas.Mul(two.Sub(effSlip)).Round(0)
	endAmount := afterGas.Round(0)

	now := b.now().Unix()
	deadline := now + b.chain.OrderDurationSec
	decayStart := now + b.chain.DecayStartOffsetSec
	decayEnd := decayStart + b.chain.DecayDurationSec

	outputs := []model.OrderOutput{
		{
			Token:       rfq.OutToken,
			Recipient:   b.chain.Treasury,
			StartAmount: gasOut.Round(0).String(),
			EndAmount:   gasOut.Round(0).String(),
		},
		{
			Token:       rfq.OutToken,
			Recipient:   rfq.User,
			StartAmount: startAmount.String(),
			EndAmount:   endAmount.String(),
		},
	}

	if !external && solverOut.GreaterThan(uiAmount) {
		refund := solverOut.Sub(uiAmount).Mul(decimal.NewFromFloat(0.1)).Round(0)
		if refund.LessThan(one) {
			refund = one
		}
		b.logger.Info("order.savings_refund",
			zap.String("session", rfq.SessionID),
			zap.String("refund", refund.String()),
			zap.String("solverOut", solverOut.Round(0).String()),
			zap.String("uiAmount", uiAmount.Round(0).String()))
		outputs = append(outputs, model.OrderOutput{
			Token:       rfq.OutToken,
			Recipient:   rfq.User,
			StartAmount: refund.String(),
			// Zero-value transfers revert on some tokens.
			EndAmount: "1",
		})
	}

	inAmount, err := decimal.NewFromString(rfq.InAmount)
	if err != nil {
		return model.OrderResult{}, fmt.Errorf("bad input amount %q: %w", rfq.InAmount, err)
	}

	desc := &model.OrderDescriptor{
		Reactor:                      b.chain.Reactor,
		Swapper:                      rfq.User,
		Nonce:                        strconv.FormatInt(now, 10),
		ExclusiveFiller:              b.chain.Executor,
		ExclusivityOverrideBps:       "0",
		AdditionalValidationContract: b.chain.Executor,
		AdditionalValidationData:     "0x",
		InputToken:                   rfq.InToken,
		InputAmount:                  inAmount.Round(0).String(),
		DecayStartTime:               decayStart,
		DecayEndTime:                 decayEnd,
		Deadline:                     deadline,
		Outputs:                      outputs,
	}
	if err := desc.Validate(); err != nil {
		return model.OrderResult{}, fmt.Errorf("order descriptor invalid: %w", err)
	}

	serialized, err := b.serial.Serialize(desc)
	if err != nil {
		return model.OrderResult{}, fmt.Errorf("serialize order: %w", err)
	}
	permit, err := b.serial.PermitData(desc)
	if err != nil {
		return model.OrderResult{}, fmt.Errorf("permit data: %w", err)
	}

	userOut := solverOut.Mul(effSlip)
	if external {
		userOut = userOut.Sub(gasOut)
	}
	userOut = userOut.Round(0)

	return model.OrderResult{
		UserOutAmount:    userOut,
		UserMinOutAmount: userOut,
		GasOutAmount:     gasOut.Round(0),
		PermitData:       permit,
		SerializedOrder:  serialized,
	}, nil
}
