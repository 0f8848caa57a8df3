package ygggo_dbconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReconnectPolicy controls how WaitForConnection retries.
type ReconnectPolicy struct {
	// MaxAttempts bounds the number of connection attempts; 0 means unbounded.
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            bool
	// MaxElapsed bounds the total wait; 0 means unbounded.
	MaxElapsed time.Duration
}

// DefaultReconnectPolicy returns the policy used by the CLI --wait flag.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts:       10,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		MaxElapsed:        5 * time.Minute,
	}
}

// ValidateReconnectPolicy validates a reconnect policy
func ValidateReconnectPolicy(policy ReconnectPolicy) error {
	if policy.MaxAttempts < 0 {
		return fmt.Errorf("max attempts must not be negative, got %d", policy.MaxAttempts)
	}

	if policy.InitialBackoff <= 0 {
		return fmt.Errorf("initial backoff must be positive, got %v", policy.InitialBackoff)
	}

	if policy.MaxBackoff <= 0 {
		return fmt.Errorf("max backoff must be positive, got %v", policy.MaxBackoff)
	}

	if policy.InitialBackoff > policy.MaxBackoff {
		return fmt.Errorf("initial backoff cannot be greater than max backoff")
	}

	if policy.BackoffMultiplier <= 1.0 {
		return fmt.Errorf("backoff multiplier must be greater than 1.0, got %f", policy.BackoffMultiplier)
	}

	return nil
}

func (p ReconnectPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialBackoff
	eb.MaxInterval = p.MaxBackoff
	eb.Multiplier = p.BackoffMultiplier
	eb.MaxElapsedTime = p.MaxElapsed
	if !p.Jitter {
		eb.RandomizationFactor = 0
	}

	var b backoff.BackOff = eb
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// WaitForConnection blocks until a connection is established, retrying with
// exponential backoff per policy.
func (db *DB) WaitForConnection(ctx context.Context, policy ReconnectPolicy) error {
	if err := ValidateReconnectPolicy(policy); err != nil {
		return fmt.Errorf("invalid reconnect policy: %w", err)
	}

	attempt := 0
	op := func() error {
		attempt++
		err := db.WithConnection(ctx, func(Connection) error { return nil })
		if errors.Is(err, ErrClosed) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		db.logger.LogAttrs(ctx, slog.LevelWarn, "database not ready, retrying",
			slog.Int("attempt", attempt),
			slog.Duration("next", next),
			slog.String("error", err.Error()),
		)
	}

	if err := backoff.RetryNotify(op, policy.backOff(ctx), notify); err != nil {
		return fmt.Errorf("waiting for database after %d attempts: %w", attempt, err)
	}
	return nil
}
