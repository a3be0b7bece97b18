package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect dials the server described by cfg and pings it. Failed attempts are
// retried with exponential backoff starting at MinRetryDelay and capped at
// MaxRetryDelay; the whole cycle is bounded by ConnectTimeout.
//
// Returns ErrEmptyConnectionURL, ErrFailedToParseRedisConnString or
// ErrRedisNotReady (joined with the last dial error).
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}
	if cfg.MaxRetryDelay > 0 {
		opts.MaxRetryBackoff = cfg.MaxRetryDelay
	}
	if cfg.MinRetryDelay > 0 {
		opts.MinRetryBackoff = cfg.MinRetryDelay
	}

	attempts := max(cfg.RetryAttempts, 1)
	delay := cfg.MinRetryDelay

	var lastErr error
	for attempt := range attempts {
		client := redis.NewClient(opts)

		lastErr = client.Ping(ctx).Err()
		if lastErr == nil {
			return client, nil
		}

		_ = client.Close()

		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(delay):
		}

		delay = nextDelay(delay, cfg.MaxRetryDelay)
	}

	return nil, errors.Join(ErrRedisNotReady, lastErr)
}

func nextDelay(current, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = 50 * time.Millisecond
	}
	next := current * 2
	if ceiling > 0 && next > ceiling {
		return ceiling
	}
	return next
}
