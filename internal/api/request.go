package api

import (
	"fmt"

	"github.com/swapflow/auctioneer/pkg/model"
)

// AuctionRequest is the inbound payload for both quote and swap rounds.
type AuctionRequest struct {
	ChainID   int64   `json:"chainId"`
	User      string  `json:"user"`
	InToken   string  `json:"inToken"`
	OutToken  string  `json:"outToken"`
	InAmount  string  `json:"inAmount"`
	OutAmount string  `json:"outAmount,omitempty"`
	SessionID string  `json:"sessionId,omitempty"`
	Slippage  float64 `json:"slippage,omitempty"`
}

func (r *AuctionRequest) Validate() error {
	if r.ChainID == 0 {
		return fmt.Errorf("chainId is required")
	}
	if r.User == "" {
		return fmt.Errorf("user is required")
	}
	if r.InToken == "" || r.OutToken == "" {
		return fmt.Errorf("inToken and outToken are required")
	}
	if r.InAmount == "" {
		return fmt.Errorf("inAmount is required")
	}
	return nil
}

func (r *AuctionRequest) toRFQ() model.RFQ {
	return model.RFQ{
		User:      r.User,
		InToken:   r.InToken,
		OutToken:  r.OutToken,
		InAmount:  r.InAmount,
		OutAmount: r.OutAmount,
		SessionID: r.SessionID,
		Slippage:  r.Slippage,
	}
}

// OutcomeRequest reports how a won swap actually settled, feeding the
// reliability counters.
type OutcomeRequest struct {
	ChainID   int64  `json:"chainId"`
	SessionID string `json:"sessionId"`
	Solver    string `json:"solver"`
	Success   bool   `json:"success"`
}

func (r *OutcomeRequest) Validate() error {
	if r.ChainID == 0 {
		return fmt.Errorf("chainId is required")
	}
	if r.Solver == "" {
		return fmt.Errorf("solver is required")
	}
	return nil
}
