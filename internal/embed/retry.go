// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package embed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

const (
	// DefaultRetryAttempts is the total number of tries per batch,
	// including the first.
	DefaultRetryAttempts = 3

	// DefaultRetryBaseDelay seeds the exponential backoff.
	DefaultRetryBaseDelay = 300 * time.Millisecond

	// DefaultRetryMaxDelay caps a single backoff sleep so one stubborn
	// item cannot stall a whole training batch.
	DefaultRetryMaxDelay = 5 * time.Second
)

// RetryConfig bounds the retry loop wrapped around provider calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultRetryAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultRetryBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultRetryMaxDelay
	}
	return c
}

// retryEmbedder retries failed batches with exponential backoff and full
// jitter. Only transient failures (rate limits, upstream outages, timeouts)
// are retried; invalid requests and malformed responses fail immediately.
type retryEmbedder struct {
	Embedder
	cfg RetryConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// WithRetry wraps inner in a bounded exponential-backoff-with-jitter retry
// loop.
func WithRetry(inner Embedder, cfg RetryConfig) Embedder {
	return &retryEmbedder{
		Embedder: inner,
		cfg:      cfg.withDefaults(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *retryEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleepContext(ctx, r.backoff(attempt-1)); err != nil {
				// Cancelled mid-backoff: surface the last provider
				// failure, not the sleep interruption.
				return nil, lastErr
			}
		}

		vectors, err := r.Embedder.Embed(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		if !retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// backoff returns the sleep before retry n (1-based): a uniformly random
// duration up to base*2^(n-1), capped at MaxDelay.
func (r *retryEmbedder) backoff(n int) time.Duration {
	ceiling := r.cfg.BaseDelay << (n - 1)
	if ceiling <= 0 || ceiling > r.cfg.MaxDelay {
		ceiling = r.cfg.MaxDelay
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Duration(r.rng.Int63n(int64(ceiling))) + 1
}

func retryable(err error) bool {
	return mnemoerr.IsRateLimited(err) || mnemoerr.IsUpstreamFailure(err) || mnemoerr.IsTimeout(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
