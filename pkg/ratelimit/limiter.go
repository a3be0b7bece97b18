package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inkpress/coord/pkg/clientip"
	"github.com/inkpress/coord/pkg/logger"
	"github.com/inkpress/coord/pkg/metrics"
	"github.com/inkpress/coord/pkg/redis"
)

// Limiter enforces fixed-window limits per key.
//
// The window opens with the first hit on a key and lasts Rule.Window; it is
// not a sliding window, so a client can burst up to twice the limit across a
// window boundary. Callers that need smooth rate shaping must not rely on it.
type Limiter struct {
	cfg       Config
	store     Store
	allow     map[string]struct{}
	logger    *slog.Logger
	now       func() time.Time
	decisions *prometheus.CounterVec
}

// Option configures a Limiter.
type Option func(*Limiter)

func WithLogger(l *slog.Logger) Option {
	return func(lim *Limiter) {
		if l != nil {
			lim.logger = l
		}
	}
}

// WithRegisterer exports coord_ratelimit_decisions_total{class,outcome}.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(lim *Limiter) {
		lim.decisions = metrics.Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limit decisions partitioned by endpoint class and outcome.",
		}, []string{"class", "outcome"}))
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(lim *Limiter) {
		if now != nil {
			lim.now = now
		}
	}
}

// New creates a Limiter over store.
func New(cfg Config, store Store, opts ...Option) *Limiter {
	l := &Limiter{
		cfg:    cfg,
		store:  store,
		allow:  cfg.allowlist(),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(logger.Component("ratelimit"))
	return l
}

// NewStore builds the production store: the coordination cache, falling back
// to process memory. The returned MemoryStore must be closed on shutdown.
func NewStore(cache redis.Provider, cfg Config, log *slog.Logger) (*FallbackStore, *MemoryStore) {
	mem := NewMemoryStore(cfg.SweepInterval)
	return NewFallbackStore(NewRedisStore(cache), mem, log), mem
}

// Config returns the limiter configuration.
func (l *Limiter) Config() Config { return l.cfg }

// Allowlisted reports whether ip bypasses limiting.
func (l *Limiter) Allowlisted(ip string) bool {
	if _, ok := l.allow[ip]; ok {
		return true
	}
	return clientip.IsLoopback(ip)
}

// Check applies the rule of class to req. Allowlisted IPs and a disabled
// limiter always pass. Store failures fail open.
func (l *Limiter) Check(ctx context.Context, class string, req Request) (Result, error) {
	return l.CheckRule(ctx, class, req, l.cfg.Rule(class))
}

// CheckRule is Check with an explicit rule.
func (l *Limiter) CheckRule(ctx context.Context, class string, req Request, rule Rule) (Result, error) {
	if err := rule.Validate(); err != nil {
		return Result{}, err
	}

	if !l.cfg.Enabled || l.Allowlisted(req.IP) {
		l.count(class, "bypassed")
		return passThrough(rule, l.now()), nil
	}

	res, err := l.CheckKey(ctx, Key(l.cfg.Prefix, req, rule.PerUser), rule)
	if err != nil {
		return Result{}, err
	}

	if res.Allowed {
		l.count(class, "allowed")
		return res, nil
	}
	l.count(class, "rejected")

	if rule.SuspiciousFactor > 0 && overLimitFactor(res.Count, rule.Limit) > rule.SuspiciousFactor {
		l.recordSuspicious(ctx, class, req, res)
	}

	return res, nil
}

// CheckKey counts one hit against key. It is the primitive used by Check and
// by callers with their own key scheme.
func (l *Limiter) CheckKey(ctx context.Context, key string, rule Rule) (Result, error) {
	if key == "" {
		return Result{}, ErrKeyRequired
	}
	if err := rule.Validate(); err != nil {
		return Result{}, err
	}

	now := l.now()
	count, ttl, err := l.store.Increment(ctx, key, rule.Window)
	if err != nil {
		l.logger.LogAttrs(ctx, slog.LevelDebug, "rate limit store failed, allowing request", logger.Error(err))
		return passThrough(rule, now), nil
	}

	res := Result{
		Allowed:       count <= int64(rule.Limit),
		Limit:         rule.Limit,
		Remaining:     int(max(int64(rule.Limit)-count, 0)),
		ResetAt:       now.Add(ttl),
		Count:         count,
		BackoffFactor: 1,
	}

	if !res.Allowed && rule.BackoffEnabled() {
		res.BackoffFactor = min(overLimitFactor(count, rule.Limit), max(rule.MaxBackoffFactor, 1))
	}

	return res, nil
}

// Suspicious returns the suspicious-activity record of (ip, path).
func (l *Limiter) Suspicious(ctx context.Context, ip, path string) (SuspiciousRecord, bool, error) {
	return l.store.Suspicious(ctx, suspiciousKey(l.cfg.Prefix, Request{IP: ip, Path: path}))
}

// Reset clears the counter of req under class.
func (l *Limiter) Reset(ctx context.Context, class string, req Request) error {
	return l.store.Reset(ctx, Key(l.cfg.Prefix, req, l.cfg.Rule(class).PerUser))
}

func (l *Limiter) recordSuspicious(ctx context.Context, class string, req Request, res Result) {
	rec, err := l.store.RecordSuspicious(ctx, suspiciousKey(l.cfg.Prefix, req), l.now(), l.cfg.SuspiciousRetention)
	if err != nil {
		return
	}

	every := max(l.cfg.SuspiciousLogEvery, 1)
	if rec.Count == 1 || rec.Count%every == 0 {
		l.logger.LogAttrs(ctx, slog.LevelWarn, "suspicious request rate",
			logger.IP(req.IP),
			logger.Path(req.Path),
			slog.String("class", class),
			slog.Int64("hits", res.Count),
			slog.Int("limit", res.Limit),
			slog.Int64("occurrences", rec.Count),
		)
	}
}

func (l *Limiter) count(class, outcome string) {
	if l.decisions != nil {
		l.decisions.WithLabelValues(class, outcome).Inc()
	}
}

// overLimitFactor is ceil(count/limit).
func overLimitFactor(count int64, limit int) int {
	return int((count + int64(limit) - 1) / int64(limit))
}

func passThrough(rule Rule, now time.Time) Result {
	return Result{
		Allowed:       true,
		Limit:         rule.Limit,
		Remaining:     rule.Limit,
		ResetAt:       now.Add(rule.Window),
		BackoffFactor: 1,
	}
}
