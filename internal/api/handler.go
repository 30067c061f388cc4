package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/swapflow/auctioneer/pkg/model"
)

// AuctionService runs auction rounds; implemented by the auction package.
type AuctionService interface {
	QuoteAuction(ctx context.Context, chainID int64, rfq model.RFQ) (*model.AuctionResult, error)
	SwapAuction(ctx context.Context, chainID int64, rfq model.RFQ) (*model.AuctionResult, error)
}

// OutcomeReporter records post-settlement outcomes into the reliability
// counters.
type OutcomeReporter interface {
	ReportSuccess(ctx context.Context, chainID int64, solver string)
	ReportFailure(ctx context.Context, chainID int64, solver string)
}

// AuctionHandler handles HTTP API requests for auction rounds.
type AuctionHandler struct {
	logger   *zap.Logger
	service  AuctionService
	outcomes OutcomeReporter
}

func NewAuctionHandler(logger *zap.Logger, service AuctionService, outcomes OutcomeReporter) *AuctionHandler {
	return &AuctionHandler{logger: logger, service: service, outcomes: outcomes}
}

// QuoteHandler runs a price-discovery round.
func (h *AuctionHandler) QuoteHandler(c *fiber.Ctx) error {
	return h.runAuction(c, h.service.QuoteAuction)
}

// SwapHandler runs an executable round.
func (h *AuctionHandler) SwapHandler(c *fiber.Ctx) error {
	return h.runAuction(c, h.service.SwapAuction)
}

func (h *AuctionHandler) runAuction(c *fiber.Ctx, run func(context.Context, int64, model.RFQ) (*model.AuctionResult, error)) error {
	var req AuctionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := run(c.Context(), req.ChainID, req.toRFQ())
	if err != nil {
		var ae *model.AuctionError
		if errors.As(err, &ae) {
			// Typed failures are part of the protocol, not server faults.
			return c.Status(fiber.StatusOK).JSON(ae)
		}
		h.logger.Error("api.auction_failed",
			zap.Int64("chain", req.ChainID),
			zap.String("session", req.SessionID),
			zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// OutcomeHandler records a settlement outcome for a solver.
func (h *AuctionHandler) OutcomeHandler(c *fiber.Ctx) error {
	var req OutcomeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if req.Success {
		h.outcomes.ReportSuccess(c.Context(), req.ChainID, req.Solver)
	} else {
		h.outcomes.ReportFailure(c.Context(), req.ChainID, req.Solver)
	}

	h.logger.Info("api.outcome_recorded",
		zap.Int64("chain", req.ChainID),
		zap.String("session", req.SessionID),
		zap.String("solver", req.Solver),
		zap.Bool("success", req.Success))
	return c.SendStatus(fiber.StatusAccepted)
}
