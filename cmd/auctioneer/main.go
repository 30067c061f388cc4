package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/swapflow/auctioneer/internal/api"
	"github.com/swapflow/auctioneer/internal/auction"
	"github.com/swapflow/auctioneer/internal/chain"
	"github.com/swapflow/auctioneer/internal/httpclient"
	"github.com/swapflow/auctioneer/internal/order"
	"github.com/swapflow/auctioneer/internal/pricing"
	"github.com/swapflow/auctioneer/internal/publisher"
	"github.com/swapflow/auctioneer/internal/quote"
	"github.com/swapflow/auctioneer/internal/rate"
	"github.com/swapflow/auctioneer/internal/scoring"
	internalsecrets "github.com/swapflow/auctioneer/internal/secrets"
	"github.com/swapflow/auctioneer/internal/solver"
	"github.com/swapflow/auctioneer/internal/store"
	"github.com/swapflow/auctioneer/internal/telemetry"
	"github.com/swapflow/auctioneer/pkg/config"
	"github.com/swapflow/auctioneer/pkg/logger"
	"github.com/swapflow/auctioneer/pkg/secrets"
	"github.com/swapflow/auctioneer/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Info("starting [auctioneer]...")
	if cfg.DatabaseURL != "" {
		logg.Info("audit DSN: ", utils.MaskDSN(cfg.DatabaseURL))
	}

	chains, err := config.LoadChains(cfg.ChainsFile)
	if err != nil {
		logg.Fatalw("failed to load chain registry", "error", err)
	}

	// --- AWS Secrets Manager provider + per-solver credential resolver ---
	awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
	if err != nil {
		logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
	}
	credCache := secrets.NewCache[internalsecrets.SolverCredentials](cfg.SecretCacheTTL)
	stopCleaner := make(chan struct{})
	go credCache.StartCleaner(cfg.SecretCleanupFreq, stopCleaner)
	credResolver := internalsecrets.NewResolver(logger.L(), cfg.Env, awsProvider, credCache)

	if solvers, derr := credResolver.DiscoverSolvers(ctx); derr != nil {
		logg.Warnw("failed to discover solver credentials", "error", derr)
	} else {
		logg.Infow("discovered solver credentials", "count", len(solvers))
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}
	pub, err := publisher.New(nc, cfg.RoundSubject, "AUCTION_EVENTS")
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Store (Redis + optional Postgres audit) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{}, logger.L())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}

	// --- Shared outbound plumbing ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.SolverRPS,
		Burst:             cfg.SolverBurst,
	})
	httpClient := &http.Client{Timeout: 30 * time.Second}
	solverExec := httpclient.New(logger.L(), rateMgr, httpClient, 0, "solver", nil)
	oracleExec := httpclient.New(logger.L(), nil, httpClient, 1, "oracle", nil)
	solverClient := solver.NewClient(logger.L(), solverExec)
	scorer := scoring.NewScorer(logger.L(), st)

	// --- Per-chain auction wiring ---
	svc := auction.NewService()
	for _, chainID := range chains.ChainIDs() {
		ch, _ := chains.Chain(chainID)

		rpc, err := chain.Dial(ctx, ch.RPCURL, ch.RPCURLBackup)
		if err != nil {
			logg.Fatalw("failed to dial chain RPC", "chain", chainID, "error", err)
		}
		tokens, err := chain.NewTokenResolver(logger.L(), ch, rpc)
		if err != nil {
			logg.Fatalw("failed to init token resolver", "chain", chainID, "error", err)
		}
		gasSource := chain.NewGasSource(logger.L(), rpc, 5*time.Second)
		oracle := pricing.NewOracle(logger.L(), ch, st, oracleExec)

		registry, err := solver.BuildRegistry(ch)
		if err != nil {
			logg.Fatalw("invalid solver config", "chain", chainID, "error", err)
		}

		serializer, err := order.NewABISerializer(ch.ChainID, ch.Permit2)
		if err != nil {
			logg.Fatalw("failed to init order serializer", "chain", chainID, "error", err)
		}
		builder := order.NewBuilder(logger.L(), ch, serializer)

		normalizer := quote.NewNormalizer(
			logger.L(), ch, registry, solverClient,
			tokens, oracle, gasSource, scorer, builder, credResolver,
		)
		emitter := telemetry.NewEmitter(logger.L(), ch, st, pub)

		svc.Register(chainID, auction.NewOrchestrator(
			logger.L(), ch, registry, normalizer, tokens, oracle, emitter,
		))
		logg.Infow("chain registered",
			"chain", chainID,
			"dex", ch.Dex,
			"solvers", len(ch.Solvers))
	}

	// --- Fiber HTTP server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})
	handler := api.NewAuctionHandler(logger.L(), svc, scorer)
	api.RegisterRoutes(app, nc, st, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[auctioneer] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"chains", len(chains.ChainIDs()))

	<-ctx.Done()
	logg.Info("shutting down [auctioneer]...")

	close(stopCleaner)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
	logger.Sync()
}
