package pricing

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/swapflow/auctioneer/internal/httpclient"
	"github.com/swapflow/auctioneer/internal/store"
	"github.com/swapflow/auctioneer/pkg/config"
	"github.com/swapflow/auctioneer/pkg/model"
)

const (
	llamaBaseURL       = "https://coins.llama.fi/prices/current"
	dexscreenerBaseURL = "https://api.dexscreener.com/latest/dex/tokens"
	paraswapBaseURL    = "https://api.paraswap.io/prices"

	cacheTTL = time.Minute
)

// Oracle resolves USD token prices for one chain. Prices are advisory: they
// feed the minimum notional check, the savings output and telemetry, never
// the winner selection itself.
//
// Sources are tried in order (llama, dexscreener, paraswap) and the first hit
// is cached in redis under price2:{chain}:{token}.
type Oracle struct {
	logger *zap.Logger
	chain  *config.Chain
	store  store.Store
	exec   *httpclient.Executor

	llamaURL       string
	dexscreenerURL string
	paraswapURL    string
}

func NewOracle(logger *zap.Logger, chain *config.Chain, st store.Store, exec *httpclient.Executor) *Oracle {
	return &Oracle{
		logger:         logger,
		chain:          chain,
		store:          st,
		exec:           exec,
		llamaURL:       llamaBaseURL,
		dexscreenerURL: dexscreenerBaseURL,
		paraswapURL:    paraswapBaseURL,
	}
}

func (o *Oracle) cacheKey(token string) string {
	return fmt.Sprintf("price2:%d:%s", o.chain.ChainID, strings.ToLower(token))
}

// PriceUsd returns the USD price for one whole token. Hard-pegged stables
// short-circuit to 1. A zero return with nil error never happens; failure of
// every source is an error the caller may ignore.
func (o *Oracle) PriceUsd(ctx context.Context, token model.TokenInfo) (float64, error) {
	addr := strings.ToLower(token.Address)
	if o.chain.IsStable(addr) {
		return 1, nil
	}

	var cached model.TokenPrice
	if err := o.store.GetJSON(ctx, o.cacheKey(addr), &cached); err == nil {
		return cached.PriceUsd, nil
	} else if err != redis.Nil {
		o.logger.Debug("oracle.cache_read_failed", zap.Error(err))
	}

	price, source, err := o.fetch(ctx, token)
	if err != nil {
		return 0, err
	}

	entry := model.TokenPrice{PriceUsd: price, Timestamp: time.Now()}
	if cerr := o.store.SetJSON(ctx, o.cacheKey(addr), entry, cacheTTL); cerr != nil {
		o.logger.Debug("oracle.cache_write_failed", zap.Error(cerr))
	}

	o.logger.Debug("oracle.price_resolved",
		zap.String("token", addr),
		zap.Float64("priceUsd", price),
		zap.String("source", source))
	return price, nil
}

func (o *Oracle) fetch(ctx context.Context, token model.TokenInfo) (float64, string, error) {
	if price, err := o.fromLlama(ctx, token.Address); err == nil && price > 0 {
		return price, "llama", nil
	}
	if price, err := o.fromDexscreener(ctx, token.Address); err == nil && price > 0 {
		return price, "dexscreener", nil
	}
	if price, err := o.fromParaswap(ctx, token); err == nil && price > 0 {
		return price, "paraswap", nil
	}
	return 0, "", fmt.Errorf("no price source answered for %s", token.Address)
}

func (o *Oracle) fromLlama(ctx context.Context, token string) (float64, error) {
	key := fmt.Sprintf("%s:%s", o.chain.Name, strings.ToLower(token))
	url := fmt.Sprintf("%s/%s", o.llamaURL, key)

	var resp struct {
		Coins map[string]struct {
			Price float64 `json:"price"`
		} `json:"coins"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	if err := o.exec.DoJSON(ctx, req, "llama", &resp); err != nil {
		return 0, err
	}
	coin, ok := resp.Coins[key]
	if !ok {
		return 0, fmt.Errorf("llama has no price for %s", key)
	}
	return coin.Price, nil
}

func (o *Oracle) fromDexscreener(ctx context.Context, token string) (float64, error) {
	url := fmt.Sprintf("%s/%s", o.dexscreenerURL, strings.ToLower(token))

	var resp struct {
		Pairs []struct {
			PriceUsd  string `json:"priceUsd"`
			Liquidity struct {
				Usd float64 `json:"usd"`
			} `json:"liquidity"`
		} `json:"pairs"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	if err := o.exec.DoJSON(ctx, req, "dexscreener", &resp); err != nil {
		return 0, err
	}

	// Deepest pair is the least manipulable price.
	best, bestLiq := 0.0, -1.0
	for _, p := range resp.Pairs {
		price, err := strconv.ParseFloat(p.PriceUsd, 64)
		if err != nil || price <= 0 {
			continue
		}
		if p.Liquidity.Usd > bestLiq {
			best, bestLiq = price, p.Liquidity.Usd
		}
	}
	if best == 0 {
		return 0, fmt.Errorf("dexscreener has no priced pairs for %s", token)
	}
	return best, nil
}

// fromParaswap quotes one whole token against the chain's first stable and
// reads the price off the route.
func (o *Oracle) fromParaswap(ctx context.Context, token model.TokenInfo) (float64, error) {
	if len(o.chain.StableTokens) == 0 {
		return 0, fmt.Errorf("no stable token to quote against")
	}
	stable := o.chain.StableTokens[0]
	amount := decimal.New(1, token.Decimals).String()

	url := fmt.Sprintf("%s?srcToken=%s&destToken=%s&amount=%s&network=%d&side=SELL",
		o.paraswapURL, token.Address, stable, amount, o.chain.ChainID)

	var resp struct {
		PriceRoute struct {
			SrcUSD string `json:"srcUSD"`
		} `json:"priceRoute"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	if err := o.exec.DoJSON(ctx, req, "paraswap", &resp); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(resp.PriceRoute.SrcUSD, 64)
	if err != nil || price <= 0 || math.IsNaN(price) {
		return 0, fmt.Errorf("paraswap price unusable for %s", token.Address)
	}
	return price, nil
}

// DollarValue converts a base-unit amount into USD, returning 0 when no
// price source answers so callers treat value checks as best-effort.
func (o *Oracle) DollarValue(ctx context.Context, token model.TokenInfo, amount string) float64 {
	price, err := o.PriceUsd(ctx, token)
	if err != nil {
		o.logger.Debug("oracle.dollar_value_unknown",
			zap.String("token", token.Address),
			zap.Error(err))
		return 0
	}
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return 0
	}
	whole := amt.Shift(-token.Decimals)
	value, _ := whole.Mul(decimal.NewFromFloat(price)).Float64()
	return value
}
