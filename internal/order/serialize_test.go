package order

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapflow/auctioneer/pkg/model"
)

func sampleDescriptor() *model.OrderDescriptor {
	return &model.OrderDescriptor{
		Reactor:                      "0x00000011f84b9aa48e5f8aa8b9897600006289be",
		Swapper:                      "0x8b1d1ea0b80cde0bdf5d3bbeefa5a18e9125f393",
		Nonce:                        "1700000000",
		ExclusiveFiller:              "0x1a3b1bb1c1bbbf8d8e2b0c8e5f35ddfcb2a6a7a1",
		ExclusivityOverrideBps:       "0",
		AdditionalValidationContract: "0x1a3b1bb1c1bbbf8d8e2b0c8e5f35ddfcb2a6a7a1",
		AdditionalValidationData:     "0x",
		InputToken:                   "0x2791bca1f2de4661ed88a30c99a7a9449aa84174",
		InputAmount:                  "1000000",
		DecayStartTime:               1_700_000_010,
		DecayEndTime:                 1_700_000_070,
		Deadline:                     1_700_000_180,
		Outputs: []model.OrderOutput{
			{
				Token:       "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270",
				Recipient:   "0x9fa1dd9f57cc0b0089e1b67b6a8b2d0f25c32f98",
				StartAmount: "5000",
				EndAmount:   "5000",
			},
			{
				Token:       "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270",
				Recipient:   "0x8b1d1ea0b80cde0bdf5d3bbeefa5a18e9125f393",
				StartAmount: "105525",
				EndAmount:   "105000",
			},
		},
	}
}

func TestSerialize_ABIEncoding(t *testing.T) {
	s, err := NewABISerializer(137, "0x000000000022d473030f116ddee9f6b43ac78ba3")
	require.NoError(t, err)

	encoded, err := s.Serialize(sampleDescriptor())
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(encoded, "0x"))
	// abi.encode output: 32-byte words, hex-encoded.
	assert.Zero(t, (len(encoded)-2)%64)

	// Word-aligned fields are recoverable from the blob.
	assert.Contains(t, encoded, "8b1d1ea0b80cde0bdf5d3bbeefa5a18e9125f393", "swapper address")
	assert.Contains(t, encoded, "2791bca1f2de4661ed88a30c99a7a9449aa84174", "input token")

	// Deterministic for identical descriptors.
	again, err := s.Serialize(sampleDescriptor())
	require.NoError(t, err)
	assert.Equal(t, encoded, again)
}

func TestSerialize_RejectsBadAmounts(t *testing.T) {
	s, err := NewABISerializer(137, "0x000000000022d473030f116ddee9f6b43ac78ba3")
	require.NoError(t, err)

	desc := sampleDescriptor()
	desc.Outputs[1].StartAmount = "not-a-number"
	_, err = s.Serialize(desc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad start amount")

	desc = sampleDescriptor()
	desc.Nonce = ""
	_, err = s.Serialize(desc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad nonce")
}

func TestPermitData_TypedDataShape(t *testing.T) {
	s, err := NewABISerializer(137, "0x000000000022d473030f116ddee9f6b43ac78ba3")
	require.NoError(t, err)

	raw, err := s.PermitData(sampleDescriptor())
	require.NoError(t, err)

	var typed struct {
		Domain struct {
			Name              string `json:"name"`
			ChainID           int64  `json:"chainId"`
			VerifyingContract string `json:"verifyingContract"`
		} `json:"domain"`
		Types  map[string]json.RawMessage `json:"types"`
		Values struct {
			Permitted struct {
				Token  string `json:"token"`
				Amount string `json:"amount"`
			} `json:"permitted"`
			Spender string `json:"spender"`
		} `json:"values"`
	}
	require.NoError(t, json.Unmarshal(raw, &typed))

	assert.Equal(t, "Permit2", typed.Domain.Name)
	assert.Equal(t, int64(137), typed.Domain.ChainID)
	assert.Equal(t, "0x000000000022d473030f116ddee9f6b43ac78ba3", typed.Domain.VerifyingContract)

	for _, name := range []string{"PermitWitnessTransferFrom", "TokenPermissions", "ExclusiveDutchOrder", "OrderInfo", "DutchOutput"} {
		assert.Contains(t, typed.Types, name)
	}
	assert.Equal(t, "0x2791bca1f2de4661ed88a30c99a7a9449aa84174", typed.Values.Permitted.Token)
	assert.Equal(t, "1000000", typed.Values.Permitted.Amount)
	assert.Equal(t, sampleDescriptor().Reactor, typed.Values.Spender)
}
