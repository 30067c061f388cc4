package rate

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Config defines rate limiting parameters applied per solver.
type Config struct {
	RequestsPerSecond int
	Burst             int
}

// Manager holds per-solver token-bucket limiters. Limiters are created
// lazily on first use with the manager's defaults.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	defaults Config
}

func NewManager(defaults Config) *Manager {
	return &Manager{
		limiters: make(map[string]*rate.Limiter),
		defaults: defaults,
	}
}

func (m *Manager) limiter(key string) *rate.Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[key]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	lim := rate.NewLimiter(rate.Limit(m.defaults.RequestsPerSecond), m.defaults.Burst)
	m.limiters[key] = lim
	return lim
}

// Allow reports whether a request for key may proceed immediately.
func (m *Manager) Allow(key string) bool {
	return m.limiter(key).Allow()
}

// Wait blocks until a token is available for key or the context is canceled.
// Auction dispatch runs under the round deadline, so a saturated limiter
// surfaces as a timeout rather than unbounded queueing.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.limiter(key).Wait(ctx)
}
