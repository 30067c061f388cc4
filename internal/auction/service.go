package auction

import (
	"context"

	"github.com/swapflow/auctioneer/pkg/model"
)

// Service routes auction requests to the per-chain orchestrator.
type Service struct {
	orchestrators map[int64]*Orchestrator
}

func NewService() *Service {
	return &Service{orchestrators: make(map[int64]*Orchestrator)}
}

// Register installs the orchestrator for a chain. Called once per configured
// chain during startup, never concurrently with request handling.
func (s *Service) Register(chainID int64, o *Orchestrator) {
	s.orchestrators[chainID] = o
}

func (s *Service) orchestrator(chainID int64, sessionID string) (*Orchestrator, error) {
	o, ok := s.orchestrators[chainID]
	if !ok {
		return nil, model.NewAuctionError(model.ErrGeneralError, sessionID, "reason", "unsupported chain")
	}
	return o, nil
}

func (s *Service) QuoteAuction(ctx context.Context, chainID int64, rfq model.RFQ) (*model.AuctionResult, error) {
	o, err := s.orchestrator(chainID, rfq.SessionID)
	if err != nil {
		return nil, err
	}
	return o.QuoteAuction(ctx, rfq)
}

func (s *Service) SwapAuction(ctx context.Context, chainID int64, rfq model.RFQ) (*model.AuctionResult, error) {
	o, err := s.orchestrator(chainID, rfq.SessionID)
	if err != nil {
		return nil, err
	}
	return o.SwapAuction(ctx, rfq)
}
