package redis

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/metrics"
)

// State describes the lifecycle of the managed connection.
type State string

const (
	StateAbsent     State = "absent"
	StateConnecting State = "connecting"
	StateReady      State = "ready"
	StateDegraded   State = "degraded"
	StateClosed     State = "closed"
)

// Provider hands out the current client, or nil in degraded mode, and
// receives command errors back. *Manager implements it.
type Provider interface {
	Get(ctx context.Context) redis.UniversalClient
	Report(ctx context.Context, err error) error
}

// Static returns a Provider that always hands out client. A nil client makes
// every consumer run on its fallback.
func Static(client redis.UniversalClient) Provider {
	return staticProvider{client: client}
}

type staticProvider struct {
	client redis.UniversalClient
}

func (p staticProvider) Get(context.Context) redis.UniversalClient { return p.client }

func (p staticProvider) Report(_ context.Context, err error) error { return err }

// Dialer creates a new client. Connect is used unless overridden.
type Dialer func(ctx context.Context, cfg Config) (redis.UniversalClient, error)

// Manager owns the process-wide coordination cache connection.
//
// The connection is created lazily by the first Get and is replaced, never
// repaired, whenever a caller or the health check reports it unhealthy. Get
// returns nil while the cache is absent or degraded; callers treat nil as
// "use the in-memory fallback", not as an error.
type Manager struct {
	cfg    Config
	dial   Dialer
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	client      redis.UniversalClient
	state       State
	retryAfter  time.Time
	connecting  chan struct{}
	subscribers []func(State)

	up       prometheus.Gauge
	done     chan struct{}
	stopOnce sync.Once
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDialer replaces the dial function.
func WithDialer(d Dialer) ManagerOption {
	return func(m *Manager) {
		if d != nil {
			m.dial = d
		}
	}
}

// WithRegisterer exports a coord_cache_up gauge to reg.
func WithRegisterer(reg prometheus.Registerer) ManagerOption {
	return func(m *Manager) {
		if reg == nil {
			return
		}
		m.up = metrics.Register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metrics.Namespace,
			Subsystem: "cache",
			Name:      "up",
			Help:      "1 when the coordination cache connection is ready, 0 otherwise.",
		}))
	}
}

// NewManager builds a Manager. No connection is attempted until Get.
func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		state:  StateAbsent,
		done:   make(chan struct{}),
		dial: func(ctx context.Context, cfg Config) (redis.UniversalClient, error) {
			return Connect(ctx, cfg)
		},
	}

	for _, opt := range opts {
		opt(m)
	}

	m.logger = m.logger.With(logger.Component("cache"))

	return m
}

// Enabled reports whether the cache is configured at all.
func (m *Manager) Enabled() bool {
	return m != nil && m.cfg.Enabled && m.cfg.ConnectionURL != ""
}

// State returns the current connection state.
func (m *Manager) State() State {
	if m == nil {
		return StateAbsent
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnStateChange registers fn to be called after every state transition.
// fn runs synchronously and must not call back into the Manager.
func (m *Manager) OnStateChange(fn func(State)) {
	if m == nil || fn == nil {
		return
	}
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
}

// Get returns a ready client or nil. A nil Manager is valid and always
// returns nil. Concurrent callers share a single connect attempt; after a
// failed attempt Get returns nil immediately until RebuildDelay has passed.
func (m *Manager) Get(ctx context.Context) redis.UniversalClient {
	if !m.Enabled() {
		return nil
	}

	m.mu.Lock()
	switch {
	case m.state == StateClosed:
		m.mu.Unlock()
		return nil
	case m.state == StateReady && m.client != nil:
		c := m.client
		m.mu.Unlock()
		return c
	case m.connecting != nil:
		wait := m.connecting
		m.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil
		}
		return m.current()
	case m.now().Before(m.retryAfter):
		m.mu.Unlock()
		return nil
	}

	wait := make(chan struct{})
	m.connecting = wait
	prev := m.state
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	client, err := m.dial(ctx, m.cfg)

	m.mu.Lock()
	m.connecting = nil
	close(wait)

	if m.state == StateClosed {
		m.mu.Unlock()
		if client != nil {
			_ = client.Close()
		}
		return nil
	}

	if err != nil {
		m.retryAfter = m.now().Add(m.cfg.RebuildDelay)
		m.setStateLocked(StateDegraded)
		m.mu.Unlock()
		if prev != StateDegraded {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "coordination cache unavailable, running in degraded mode",
				logger.Error(err),
			)
		}
		return nil
	}

	m.client = client
	m.setStateLocked(StateReady)
	m.mu.Unlock()

	if prev == StateDegraded {
		m.logger.LogAttrs(ctx, slog.LevelInfo, "coordination cache recovered")
	}

	return client
}

// Report inspects a command error. Connection-level failures drop the current
// client so the next Get rebuilds it. Report returns err unchanged so call
// sites can write `return m.Report(ctx, err)`.
func (m *Manager) Report(ctx context.Context, err error) error {
	if m == nil || !IsUnhealthy(err) {
		return err
	}
	m.invalidate(ctx, err)
	return err
}

// Ping runs one health check against the current client. A nil manager
// reports ErrUnavailable.
func (m *Manager) Ping(ctx context.Context) error {
	if m == nil {
		return ErrUnavailable
	}
	if m.State() == StateClosed {
		return ErrManagerClosed
	}
	client := m.current()
	if client == nil {
		if m.Get(ctx) == nil {
			return ErrRedisNotReady
		}
		return nil
	}
	if err := Healthcheck(client)(ctx); err != nil {
		m.invalidate(ctx, err)
		return err
	}
	return nil
}

// Run performs the periodic health check until ctx is done or the manager is
// closed. It returns immediately when health checks are disabled.
func (m *Manager) Run(ctx context.Context) error {
	if !m.Enabled() || !m.cfg.HealthcheckEnabled || m.cfg.HealthcheckInterval <= 0 {
		return nil
	}

	ticker := time.NewTicker(m.cfg.HealthcheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.done:
			return nil
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, m.cfg.HealthcheckInterval)
			_ = m.Ping(pctx)
			cancel()
		}
	}
}

// Close releases the connection. Later Gets return nil.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}

	m.stopOnce.Do(func() { close(m.done) })

	m.mu.Lock()
	client := m.client
	m.client = nil
	m.setStateLocked(StateClosed)
	m.mu.Unlock()

	if client != nil {
		return client.Close()
	}
	return nil
}

func (m *Manager) current() redis.UniversalClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateReady {
		return nil
	}
	return m.client
}

func (m *Manager) invalidate(ctx context.Context, cause error) {
	m.mu.Lock()
	if m.state != StateReady {
		m.mu.Unlock()
		return
	}
	client := m.client
	m.client = nil
	m.retryAfter = time.Time{}
	m.setStateLocked(StateDegraded)
	m.mu.Unlock()

	if client != nil {
		_ = client.Close()
	}

	m.logger.LogAttrs(ctx, slog.LevelWarn, "coordination cache connection unhealthy, will rebuild",
		logger.Error(cause),
	)
}

// must be called with m.mu held
func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	if m.up != nil {
		if s == StateReady {
			m.up.Set(1)
		} else {
			m.up.Set(0)
		}
	}
	for _, fn := range m.subscribers {
		fn(s)
	}
}

var _ Provider = (*Manager)(nil)
