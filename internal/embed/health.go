// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package embed

import (
	"context"
	"sync"
	"time"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/mnemo-dev/mnemo/pkg/health"
)

// Tracker records embedding provider health. The provider is considered
// healthy until a failure is recorded; after a failure it is held unhealthy
// for a cooldown period, then becomes eligible again so recovery is
// possible. The scheduler consults this before launching automatic training
// runs, so a flapping provider does not burn scheduled batches.
type Tracker struct {
	mu           sync.RWMutex
	healthy      bool
	failedAt     time.Time
	cooldown     time.Duration
	failureCount int64
	nowFunc      func() time.Time // for testing
}

// DefaultHealthCooldown is the duration after which an unhealthy provider
// becomes eligible for retry.
const DefaultHealthCooldown = 30 * time.Second

// NewTracker creates a Tracker that starts healthy. Returns an error if
// cooldown is zero or negative.
func NewTracker(cooldown time.Duration) (*Tracker, error) {
	if cooldown <= 0 {
		return nil, mnemoerr.Errorf(mnemoerr.CodeConfigValidateInvalidValue,
			"health tracker cooldown must be positive, got %s", cooldown)
	}
	return &Tracker{
		healthy:  true,
		cooldown: cooldown,
		nowFunc:  time.Now,
	}, nil
}

// isHealthyLocked reports whether the provider is healthy or the cooldown
// has elapsed. The caller MUST hold at least t.mu.RLock.
func (t *Tracker) isHealthyLocked() bool {
	if t.healthy {
		return true
	}
	// Allow retry after cooldown expires.
	return t.nowFunc().Sub(t.failedAt) >= t.cooldown
}

// IsHealthy returns true if the provider is healthy or the cooldown has
// elapsed.
func (t *Tracker) IsHealthy() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isHealthyLocked()
}

// RecordSuccess marks the provider as healthy.
func (t *Tracker) RecordSuccess() {
	t.mu.Lock()
	t.healthy = true
	t.mu.Unlock()
}

// RecordFailure marks the provider as unhealthy and increments the
// cumulative failure count.
func (t *Tracker) RecordFailure() {
	t.mu.Lock()
	t.healthy = false
	t.failedAt = t.nowFunc()
	t.failureCount++
	t.mu.Unlock()
}

// SetNowFunc overrides the time source (for testing).
func (t *Tracker) SetNowFunc(fn func() time.Time) {
	t.mu.Lock()
	t.nowFunc = fn
	t.mu.Unlock()
}

// Metrics returns a point-in-time snapshot of the tracker's health state,
// safe to serialize.
func (t *Tracker) Metrics() health.Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m := health.Metrics{
		FailureCount: t.failureCount,
	}

	if t.failureCount > 0 {
		at := t.failedAt
		m.LastFailureAt = &at
	}

	m.Available = t.isHealthyLocked()
	if !m.Available {
		cooldownEnd := t.failedAt.Add(t.cooldown)
		m.CooldownUntil = &cooldownEnd
	}
	return m
}

// trackedEmbedder feeds batch outcomes into a Tracker.
type trackedEmbedder struct {
	Embedder
	tracker *Tracker
}

// WithTracking records every batch outcome in tracker.
func WithTracking(inner Embedder, tracker *Tracker) Embedder {
	return &trackedEmbedder{Embedder: inner, tracker: tracker}
}

func (t *trackedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := t.Embedder.Embed(ctx, texts)
	if err != nil {
		t.tracker.RecordFailure()
		return nil, err
	}
	t.tracker.RecordSuccess()
	return vectors, nil
}
