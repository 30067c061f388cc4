package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/swapflow/auctioneer/pkg/config"
	"github.com/swapflow/auctioneer/pkg/model"
)

// NativeAddress is the conventional pseudo-address users pass for the chain's
// native coin.
const NativeAddress = "0x0000000000000000000000000000000000000000"

const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

// TokenResolver fetches and caches ERC-20 metadata per chain. Metadata is
// immutable on-chain so the cache never expires.
type TokenResolver struct {
	logger *zap.Logger
	chain  *config.Chain
	client *ethclient.Client
	abi    abi.ABI

	mu    sync.RWMutex
	cache map[string]model.TokenInfo
}

func NewTokenResolver(logger *zap.Logger, chain *config.Chain, client *ethclient.Client) (*TokenResolver, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &TokenResolver{
		logger: logger,
		chain:  chain,
		client: client,
		abi:    parsed,
		cache:  make(map[string]model.TokenInfo),
	}, nil
}

// Resolve returns token metadata. The native pseudo-address short-circuits to
// the configured native token. On RPC failure it falls back to decimals 18
// rather than failing the auction; a wrong-decimals quote is filtered later
// by the plausibility collar.
func (r *TokenResolver) Resolve(ctx context.Context, address string) model.TokenInfo {
	address = strings.ToLower(address)
	if address == NativeAddress || address == strings.ToLower(r.chain.Native.Address) {
		return model.TokenInfo{
			Address:  NativeAddress,
			Symbol:   r.chain.Native.Symbol,
			Decimals: r.chain.Native.Decimals,
		}
	}

	r.mu.RLock()
	if info, ok := r.cache[address]; ok {
		r.mu.RUnlock()
		return info
	}
	r.mu.RUnlock()

	info, err := r.fetch(ctx, address)
	if err != nil {
		r.logger.Warn("chain.token_metadata_failed",
			zap.String("token", address),
			zap.Error(err))
		return model.TokenInfo{Address: address, Symbol: "", Decimals: 18}
	}

	r.mu.Lock()
	r.cache[address] = info
	r.mu.Unlock()
	return info
}

func (r *TokenResolver) fetch(ctx context.Context, address string) (model.TokenInfo, error) {
	target := common.HexToAddress(address)

	decimals, err := r.callUint8(ctx, target, "decimals")
	if err != nil {
		return model.TokenInfo{}, fmt.Errorf("decimals: %w", err)
	}
	symbol, err := r.callString(ctx, target, "symbol")
	if err != nil {
		// Symbol is cosmetic; keep the decimals we already have.
		r.logger.Debug("chain.symbol_call_failed", zap.String("token", address), zap.Error(err))
		symbol = ""
	}

	return model.TokenInfo{Address: address, Symbol: symbol, Decimals: int32(decimals)}, nil
}

func (r *TokenResolver) call(ctx context.Context, to common.Address, method string) ([]any, error) {
	data, err := r.abi.Pack(method)
	if err != nil {
		return nil, err
	}
	out, err := r.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return r.abi.Unpack(method, out)
}

func (r *TokenResolver) callUint8(ctx context.Context, to common.Address, method string) (uint8, error) {
	vals, err := r.call(ctx, to, method)
	if err != nil {
		return 0, err
	}
	v, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("unexpected %s return type %T", method, vals[0])
	}
	return v, nil
}

func (r *TokenResolver) callString(ctx context.Context, to common.Address, method string) (string, error) {
	vals, err := r.call(ctx, to, method)
	if err != nil {
		return "", err
	}
	v, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("unexpected %s return type %T", method, vals[0])
	}
	return v, nil
}

// IsNative reports whether address denotes the chain's native coin.
func (r *TokenResolver) IsNative(address string) bool {
	address = strings.ToLower(address)
	return address == NativeAddress || address == strings.ToLower(r.chain.Native.Address)
}
