package secrets

import (
	"context"
	"fmt"
	"strings"

	pkgsecrets "github.com/swapflow/auctioneer/pkg/secrets"
	"go.uber.org/zap"
)

// SolverCredentials are the per-solver secrets the auction needs at dispatch
// time: the API key sent in X-API-KEY, and optionally a dedicated filler
// address the solver settles through.
type SolverCredentials struct {
	APIKey string
	Filler string
}

// ParseSolverCredentials validates the raw secret payload.
func ParseSolverCredentials(raw map[string]string) (SolverCredentials, error) {
	creds := SolverCredentials{
		APIKey: raw["api_key"],
		Filler: raw["filler"],
	}
	if creds.APIKey == "" {
		return SolverCredentials{}, fmt.Errorf("secret is missing api_key")
	}
	return creds, nil
}

// Resolver resolves per-solver credentials from a secrets Provider, caching
// results locally to keep the auction hot path off the Secrets Manager API.
//
// Secret naming convention: {env}/auctioneer/{solverName}
type Resolver struct {
	logger   *zap.Logger
	env      string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[SolverCredentials]
}

func NewResolver(
	logger *zap.Logger,
	env string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[SolverCredentials],
) *Resolver {
	return &Resolver{
		logger:   logger,
		env:      env,
		provider: provider,
		cache:    cache,
	}
}

func (r *Resolver) secretName(solver string) string {
	return strings.ToLower(fmt.Sprintf("%s/auctioneer/%s", r.env, solver))
}

// Resolve fetches or caches the credentials for a solver. A missing secret is
// an error; the caller decides whether the solver is skipped or the auction
// fails.
func (r *Resolver) Resolve(ctx context.Context, solver string) (SolverCredentials, error) {
	key := strings.ToLower(solver)
	if creds, ok := r.cache.Get(key); ok {
		return creds, nil
	}

	name := r.secretName(solver)
	raw, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed",
			zap.String("key", name),
			zap.Error(err))
		return SolverCredentials{}, fmt.Errorf("resolve credentials for solver %q: %w", solver, err)
	}

	creds, err := ParseSolverCredentials(raw)
	if err != nil {
		return SolverCredentials{}, fmt.Errorf("parse secret %q: %w", name, err)
	}

	r.cache.Put(key, creds)
	r.logger.Info("secrets.solver_credentials_resolved", zap.String("solver", solver))
	return creds, nil
}

// APIKey resolves the solver's API key and filler address. It satisfies the
// quote pipeline's credential contract.
func (r *Resolver) APIKey(ctx context.Context, solver string) (string, string, error) {
	creds, err := r.Resolve(ctx, solver)
	if err != nil {
		return "", "", err
	}
	return creds.APIKey, creds.Filler, nil
}

// DiscoverSolvers lists solver names that have credentials configured,
// matching "{env}/auctioneer/{solverName}".
func (r *Resolver) DiscoverSolvers(ctx context.Context) ([]string, error) {
	prefix := strings.ToLower(fmt.Sprintf("%s/auctioneer/", r.env))

	names, err := r.provider.ListSecrets(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("discover solvers: %w", err)
	}

	var solvers []string
	for _, name := range names {
		trimmed := strings.TrimPrefix(strings.ToLower(name), prefix)
		if trimmed != "" && !strings.Contains(trimmed, "/") {
			solvers = append(solvers, trimmed)
		}
	}

	r.logger.Info("secrets.solvers_discovered",
		zap.Int("count", len(solvers)),
		zap.Strings("solvers", solvers),
	)
	return solvers, nil
}
