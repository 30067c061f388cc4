package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// GasSource provides the current gas price with a short cache, so a burst of
// auctions does not hammer the RPC node.
type GasSource struct {
	logger *zap.Logger
	client *ethclient.Client
	ttl    time.Duration

	mu      sync.Mutex
	price   *big.Int
	fetched time.Time
}

func NewGasSource(logger *zap.Logger, client *ethclient.Client, ttl time.Duration) *GasSource {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &GasSource{logger: logger, client: client, ttl: ttl}
}

// GasPrice returns the suggested gas price in wei.
func (g *GasSource) GasPrice(ctx context.Context) (*big.Int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.price != nil && time.Since(g.fetched) < g.ttl {
		return new(big.Int).Set(g.price), nil
	}

	price, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		if g.price != nil {
			g.logger.Warn("chain.gas_price_stale", zap.Error(err))
			return new(big.Int).Set(g.price), nil
		}
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	g.price = price
	g.fetched = time.Now()
	return new(big.Int).Set(price), nil
}

// Dial connects to the chain RPC, trying the backup URL if the primary fails.
func Dial(ctx context.Context, primary, backup string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, primary)
	if err == nil {
		return client, nil
	}
	if backup == "" {
		return nil, fmt.Errorf("dial %s: %w", primary, err)
	}
	client, berr := ethclient.DialContext(ctx, backup)
	if berr != nil {
		return nil, fmt.Errorf("dial %s (backup %s failed too): %w", primary, backup, err)
	}
	return client, nil
}
