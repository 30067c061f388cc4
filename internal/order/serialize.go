package order

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/swapflow/auctioneer/pkg/model"
)

// ABISerializer encodes a Dutch order the way the settlement reactor expects:
// a single abi.encode of the full order tuple. The layout must match the
// on-chain decoder exactly, so the tuple components below are built once and
// reused for every order.
type ABISerializer struct {
	chainID int64
	permit2 string
	args    abi.Arguments
}

func NewABISerializer(chainID int64, permit2 string) (*ABISerializer, error) {
	orderType, err := abi.NewType("tuple", "", []abi.ArgumentMarshaling{
		{Name: "info", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "reactor", Type: "address"},
			{Name: "swapper", Type: "address"},
			{Name: "nonce", Type: "uint256"},
			{Name: "deadline", Type: "uint256"},
			{Name: "additionalValidationContract", Type: "address"},
			{Name: "additionalValidationData", Type: "bytes"},
		}},
		{Name: "decayStartTime", Type: "uint256"},
		{Name: "decayEndTime", Type: "uint256"},
		{Name: "exclusiveFiller", Type: "address"},
		{Name: "exclusivityOverrideBps", Type: "uint256"},
		{Name: "input", Type: "tuple", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "startAmount", Type: "uint256"},
			{Name: "endAmount", Type: "uint256"},
		}},
		{Name: "outputs", Type: "tuple[]", Components: []abi.ArgumentMarshaling{
			{Name: "token", Type: "address"},
			{Name: "startAmount", Type: "uint256"},
			{Name: "endAmount", Type: "uint256"},
			{Name: "recipient", Type: "address"},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("build order tuple type: %w", err)
	}
	return &ABISerializer{
		chainID: chainID,
		permit2: permit2,
		args:    abi.Arguments{{Type: orderType}},
	}, nil
}

type abiOrderInfo struct {
	Reactor                      common.Address
	Swapper                      common.Address
	Nonce                        *big.Int
	Deadline                     *big.Int
	AdditionalValidationContract common.Address
	AdditionalValidationData     []byte
}

type abiDecayInput struct {
	Token       common.Address
	StartAmount *big.Int
	EndAmount   *big.Int
}

type abiDecayOutput struct {
	Token       common.Address
	StartAmount *big.Int
	EndAmount   *big.Int
	Recipient   common.Address
}

type abiOrder struct {
	Info                   abiOrderInfo
	DecayStartTime         *big.Int
	DecayEndTime           *big.Int
	ExclusiveFiller        common.Address
	ExclusivityOverrideBps *big.Int
	Input                  abiDecayInput
	Outputs                []abiDecayOutput
}

// Serialize ABI-encodes the descriptor and returns it hex-prefixed.
func (s *ABISerializer) Serialize(desc *model.OrderDescriptor) (string, error) {
	nonce, ok := new(big.Int).SetString(desc.Nonce, 10)
	if !ok {
		return "", fmt.Errorf("bad nonce %q", desc.Nonce)
	}
	overrideBps, ok := new(big.Int).SetString(desc.ExclusivityOverrideBps, 10)
	if !ok {
		return "", fmt.Errorf("bad exclusivityOverrideBps %q", desc.ExclusivityOverrideBps)
	}
	inAmount, ok := new(big.Int).SetString(desc.InputAmount, 10)
	if !ok {
		return "", fmt.Errorf("bad input amount %q", desc.InputAmount)
	}

	validationData, err := hexutil.Decode(desc.AdditionalValidationData)
	if err != nil {
		return "", fmt.Errorf("bad validation data %q: %w", desc.AdditionalValidationData, err)
	}

	outputs := make([]abiDecayOutput, 0, len(desc.Outputs))
	for i, o := range desc.Outputs {
		start, ok := new(big.Int).SetString(o.StartAmount, 10)
		if !ok {
			return "", fmt.Errorf("output %d: bad start amount %q", i, o.StartAmount)
		}
		end, ok := new(big.Int).SetString(o.EndAmount, 10)
		if !ok {
			return "", fmt.Errorf("output %d: bad end amount %q", i, o.EndAmount)
		}
		outputs = append(outputs, abiDecayOutput{
			Token:       common.HexToAddress(o.Token),
			StartAmount: start,
			EndAmount:   end,
			Recipient:   common.HexToAddress(o.Recipient),
		})
	}

	encoded, err := s.args.Pack(abiOrder{
		Info: abiOrderInfo{
			Reactor:                      common.HexToAddress(desc.Reactor),
			Swapper:                      common.HexToAddress(desc.Swapper),
			Nonce:                        nonce,
			Deadline:                     big.NewInt(desc.Deadline),
			AdditionalValidationContract: common.HexToAddress(desc.AdditionalValidationContract),
			AdditionalValidationData:     validationData,
		},
		DecayStartTime:         big.NewInt(desc.DecayStartTime),
		DecayEndTime:           big.NewInt(desc.DecayEndTime),
		ExclusiveFiller:        common.HexToAddress(desc.ExclusiveFiller),
		ExclusivityOverrideBps: overrideBps,
		Input: abiDecayInput{
			Token:       common.HexToAddress(desc.InputToken),
			StartAmount: inAmount,
			EndAmount:   inAmount,
		},
		Outputs: outputs,
	})
	if err != nil {
		return "", fmt.Errorf("abi pack order: %w", err)
	}
	return hexutil.Encode(encoded), nil
}

// PermitData returns the EIP-712 typed data the swapper signs: a Permit2
// witness transfer covering the input amount with the reactor as spender.
func (s *ABISerializer) PermitData(desc *model.OrderDescriptor) ([]byte, error) {
	typed := map[string]any{
		"domain": map[string]any{
			"name":              "Permit2",
			"chainId":           s.chainID,
			"verifyingContract": s.permit2,
		},
		"types": map[string]any{
			"PermitWitnessTransferFrom": []map[string]string{
				{"name": "permitted", "type": "TokenPermissions"},
				{"name": "spender", "type": "address"},
				{"name": "nonce", "type": "uint256"},
				{"name": "deadline", "type": "uint256"},
				{"name": "witness", "type": "ExclusiveDutchOrder"},
			},
			"TokenPermissions": []map[string]string{
				{"name": "token", "type": "address"},
				{"name": "amount", "type": "uint256"},
			},
			"ExclusiveDutchOrder": []map[string]string{
				{"name": "info", "type": "OrderInfo"},
				{"name": "decayStartTime", "type": "uint256"},
				{"name": "decayEndTime", "type": "uint256"},
				{"name": "exclusiveFiller", "type": "address"},
				{"name": "exclusivityOverrideBps", "type": "uint256"},
				{"name": "inputToken", "type": "address"},
				{"name": "inputStartAmount", "type": "uint256"},
				{"name": "inputEndAmount", "type": "uint256"},
				{"name": "outputs", "type": "DutchOutput[]"},
			},
			"OrderInfo": []map[string]string{
				{"name": "reactor", "type": "address"},
				{"name": "swapper", "type": "address"},
				{"name": "nonce", "type": "uint256"},
				{"name": "deadline", "type": "uint256"},
				{"name": "additionalValidationContract", "type": "address"},
				{"name": "additionalValidationData", "type": "bytes"},
			},
			"DutchOutput": []map[string]string{
				{"name": "token", "type": "address"},
				{"name": "startAmount", "type": "uint256"},
				{"name": "endAmount", "type": "uint256"},
				{"name": "recipient", "type": "address"},
			},
		},
		"values": map[string]any{
			"permitted": map[string]string{
				"token":  desc.InputToken,
				"amount": desc.InputAmount,
			},
			"spender":  desc.Reactor,
			"nonce":    desc.Nonce,
			"deadline": desc.Deadline,
			"witness":  desc,
		},
	}
	data, err := json.Marshal(typed)
	if err != nil {
		return nil, fmt.Errorf("marshal permit data: %w", err)
	}
	return data, nil
}
