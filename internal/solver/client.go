package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/swapflow/auctioneer/internal/httpclient"
	"github.com/swapflow/auctioneer/pkg/model"
)

// The solver wire protocol wraps the actual request in a JSON-encoded string
// under "dataStr". Solvers unwrap it symmetrically; the envelope predates
// this service and is kept for compatibility with deployed solvers.

type wireOrder struct {
	ID       string `json:"id"`
	SrcToken string `json:"srcToken"`
	AmountIn string `json:"amountIn"`
	DstToken string `json:"dstToken"`
	User     string `json:"user"`
}

type wirePayload struct {
	Network          string            `json:"network"`
	Dex              string            `json:"dex"`
	Filler           string            `json:"filler"`
	PathFinderParams map[string]string `json:"pathFinderParams,omitempty"`
	Orders           []wireOrder       `json:"orders"`
}

type wireEnvelope struct {
	DataStr   string `json:"dataStr"`
	SessionID string `json:"sessionId"`
}

type wireRoute struct {
	AmountOut      string          `json:"amountOut"`
	RawData        json.RawMessage `json:"rawData"`
	SolverGasUnits json.RawMessage `json:"solverGasUnits"`
}

type wireFillData struct {
	To       string `json:"to"`
	Data     string `json:"data"`
	SolverID string `json:"solverId"`
}

type wireSimResult struct {
	OutAmount string `json:"outAmount"`
}

type wireResult struct {
	Success             bool           `json:"success"`
	Route               wireRoute      `json:"route"`
	FillData            *wireFillData  `json:"fillData"`
	SimulatedSwapResult *wireSimResult `json:"simulatedSwapResult"`
}

type wireResponse struct {
	Result []wireResult `json:"result"`
	Error  string       `json:"error"`
}

// Request carries everything one solver call needs.
type Request struct {
	RFQ       model.RFQ
	Network   string
	Dex       string
	Filler    string
	APIKey    string
	SessionID string

	// Extras land in pathFinderParams, e.g. an offchain solver's baseline
	// reference price.
	Extras map[string]string

	// Lite selects the price-discovery endpoint instead of the firm-bid one.
	Lite bool
}

// Result is a solver's answer, decoded but not yet judged.
type Result struct {
	OutAmount         string
	Raw               json.RawMessage
	SolverGasUnits    json.RawMessage
	To                string
	Data              string
	SolverID          string
	SimulateOutAmount string
}

// Client speaks the solver wire protocol over the shared executor.
type Client struct {
	logger *zap.Logger
	exec   *httpclient.Executor
}

func NewClient(logger *zap.Logger, exec *httpclient.Executor) *Client {
	return &Client{logger: logger, exec: exec}
}

func endpoint(s *Solver, lite bool) string {
	base := strings.TrimRight(s.URL, "/")
	if lite {
		return base + "/quote"
	}
	return base + "/getBids"
}

// Quote calls one solver and classifies its answer. Every failure comes back
// as a *model.AuctionError whose code feeds the reliability counters.
func (c *Client) Quote(ctx context.Context, s *Solver, req Request) (Result, error) {
	payload := wirePayload{
		Network:          req.Network,
		Dex:              req.Dex,
		Filler:           req.Filler,
		PathFinderParams: req.Extras,
		Orders: []wireOrder{{
			ID:       uuid.NewString(),
			SrcToken: req.RFQ.InToken,
			AmountIn: req.RFQ.InAmount,
			DstToken: req.RFQ.OutToken,
			User:     req.RFQ.User,
		}},
	}

	inner, err := json.Marshal(payload)
	if err != nil {
		return Result{}, model.NewAuctionError(model.ErrGeneralError, req.SessionID, "reason", err.Error())
	}
	body, err := json.Marshal(wireEnvelope{DataStr: string(inner), SessionID: req.SessionID})
	if err != nil {
		return Result{}, model.NewAuctionError(model.ErrGeneralError, req.SessionID, "reason", err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint(s, req.Lite), bytes.NewReader(body))
	if err != nil {
		return Result{}, model.NewAuctionError(model.ErrGeneralError, req.SessionID, "reason", err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.APIKey != "" {
		httpReq.Header.Set("X-API-KEY", req.APIKey)
	}

	var resp wireResponse
	if err := c.exec.DoJSON(ctx, httpReq, s.Name, &resp); err != nil {
		c.logger.Debug("solver.call_failed",
			zap.String("solver", s.Name),
			zap.String("session", req.SessionID),
			zap.Error(err))
		if ctx.Err() != nil {
			return Result{}, model.NewAuctionError(model.ErrTimeout, req.SessionID, "solver", s.Name)
		}
		return Result{}, model.NewAuctionError(model.ErrFetchFailed, req.SessionID, "solver", s.Name, "reason", err.Error())
	}

	if resp.Error != "" {
		code := model.ErrGeneralError
		if resp.Error == "timeout" {
			code = model.ErrTimeout
		}
		return Result{}, model.NewAuctionError(code, req.SessionID, "solver", s.Name, "reason", resp.Error)
	}
	if len(resp.Result) == 0 {
		return Result{}, model.NewAuctionError(model.ErrNoRoute, req.SessionID, "solver", s.Name)
	}

	first := resp.Result[0]
	if !first.Success || isZeroAmount(first.Route.AmountOut) {
		return Result{}, model.NewAuctionError(model.ErrNoRoute, req.SessionID, "solver", s.Name)
	}

	res := Result{
		OutAmount:      first.Route.AmountOut,
		Raw:            first.Route.RawData,
		SolverGasUnits: first.Route.SolverGasUnits,
	}
	if first.FillData != nil {
		res.To = first.FillData.To
		res.Data = first.FillData.Data
		res.SolverID = first.FillData.SolverID
	}
	if first.SimulatedSwapResult != nil {
		res.SimulateOutAmount = first.SimulatedSwapResult.OutAmount
	}
	return res, nil
}

func isZeroAmount(amount string) bool {
	if amount == "" {
		return true
	}
	for _, r := range amount {
		if r != '0' && r != '.' {
			return false
		}
	}
	return true
}

// FormatBaseline renders a baseline amount for an offchain solver's extras.
func FormatBaseline(s *Solver, amount string) map[string]string {
	if s.BaselineParam == "" || amount == "" {
		return nil
	}
	return map[string]string{s.BaselineParam: amount}
}
