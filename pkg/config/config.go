package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the core runtime configuration for a service instance.
// Per-chain auction parameters live in the chain registry (see chains.go);
// this struct is process-level wiring only.
type Config struct {
	ServiceName string // e.g. "auctioneer"
	Env         string // e.g. "dev", "uat", "prod"
	LogLevel    string // "debug", "info", etc.
	Port        int

	ChainsFile string // path to the chain/deployment registry YAML

	RedisAddr string
	RedisDB   int
	RedisPass string

	NATSURL     string
	DatabaseURL string // optional; empty disables the auction audit writer
	AWSRegion   string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	HTTPBodyLimit    int

	SecretCacheTTL    time.Duration
	SecretCleanupFreq time.Duration

	// Outbound subjects for auction telemetry.
	RoundSubject string

	// Per-solver outbound rate limiting.
	SolverRPS   int
	SolverBurst int
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServiceName:       GetEnv("SERVICE_NAME", "auctioneer"),
		Env:               GetEnv("ENV", "dev"),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		Port:              GetEnvInt("PORT", 9040),
		ChainsFile:        GetEnv("CHAINS_FILE", "configs/chains.yaml"),
		RedisAddr:         GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           GetEnvInt("REDIS_DB", 0),
		RedisPass:         GetEnv("REDIS_PASS", ""),
		NATSURL:           GetEnv("NATS_URL", "nats://localhost:4222"),
		DatabaseURL:       GetEnv("DATABASE_URL", ""),
		AWSRegion:         GetEnv("AWS_REGION", "us-east-2"),
		HTTPReadTimeout:   GetEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		HTTPWriteTimeout:  GetEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		HTTPIdleTimeout:   GetEnvDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
		HTTPBodyLimit:     GetEnvInt("HTTP_BODY_LIMIT", 1*1024*1024),
		SecretCacheTTL:    GetEnvDuration("SECRET_CACHE_TTL", 24*time.Hour),
		SecretCleanupFreq: GetEnvDuration("SECRET_CACHE_CLEANUP_FREQ", 10*time.Minute),
		RoundSubject:      GetEnv("ROUND_SUBJECT", "evt.auction.round.v1"),
		SolverRPS:         GetEnvInt("SOLVER_RPS", 20),
		SolverBurst:       GetEnvInt("SOLVER_BURST", 40),
	}
}
