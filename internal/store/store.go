package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Store is the contract for the auction's hot-path cache and the audit
// database. Redis backs reliability counters, price caching and the winning
// quote channel; Postgres (optional) receives auction round audit rows.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string, ttl time.Duration) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	Publish(ctx context.Context, channel string, payload any) error
	RecordAuctionRound(ctx context.Context, row AuctionRoundRow) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// AuctionRoundRow is one settled auction round for the audit trail.
type AuctionRoundRow struct {
	SessionID  string
	ChainID    int64
	InToken    string
	OutToken   string
	InAmount   string
	OutAmount  string
	Winner     string
	ErrorCode  string
	Solvers    int
	InTokenUsd float64
	ElapsedMs  int64
}

type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first store with an optional Postgres audit pool.
// An empty pgURL disables the audit trail entirely.
func NewHybrid(redisAddr, redisPass string, redisDB int, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPass,
		DB:       redisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

// NewWithClient wraps an existing redis client; used in tests with miniredis.
func NewWithClient(rdb *redis.Client, logger *zap.Logger) *HybridStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridStore{redis: rdb, logger: logger}
}

// Get returns the string value at key, or empty when the key is absent.
func (s *HybridStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// Incr increments a counter and refreshes its TTL.
func (s *HybridStore) Incr(ctx context.Context, key string, ttl time.Duration) error {
	pipe := s.redis.Pipeline()
	pipe.Incr(ctx, key)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return redis.Nil
	} else if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// Publish JSON-encodes payload onto a redis pub/sub channel.
func (s *HybridStore) Publish(ctx context.Context, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal publish payload: %w", err)
	}
	return s.redis.Publish(ctx, channel, data).Err()
}

// RecordAuctionRound inserts one audit row. A nil pool is a no-op so the
// service runs without Postgres in lower environments.
func (s *HybridStore) RecordAuctionRound(ctx context.Context, row AuctionRoundRow) error {
	if s.PG == nil {
		return nil
	}
	_, err := s.PG.Exec(ctx, `
		INSERT INTO auction.round (
			session_id, chain_id, in_token, out_token,
			in_amount, out_amount, winner, error_code,
			solvers, in_token_usd, elapsed_ms, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
	`, row.SessionID, row.ChainID, row.InToken, row.OutToken,
		row.InAmount, row.OutAmount, row.Winner, row.ErrorCode,
		row.Solvers, row.InTokenUsd, row.ElapsedMs)
	if err != nil {
		return fmt.Errorf("insert auction round: %w", err)
	}
	return nil
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
