// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package embed_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mnemo-dev/mnemo/internal/embed"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/mnemo-dev/mnemo/pkg/health"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_StartsHealthy(t *testing.T) {
	tracker, err := embed.NewTracker(30 * time.Second)
	require.NoError(t, err)
	assert.True(t, tracker.IsHealthy())
}

func TestTracker_InvalidCooldown(t *testing.T) {
	for _, cooldown := range []time.Duration{0, -time.Second} {
		_, err := embed.NewTracker(cooldown)
		require.Error(t, err)
		assert.True(t, mnemoerr.HasCode(err, mnemoerr.CodeConfigValidateInvalidValue))
	}
}

func TestTracker_FailureMakesUnhealthy(t *testing.T) {
	tracker, err := embed.NewTracker(30 * time.Second)
	require.NoError(t, err)

	tracker.RecordFailure()
	assert.False(t, tracker.IsHealthy())
}

func TestTracker_SuccessRestoresHealth(t *testing.T) {
	tracker, err := embed.NewTracker(30 * time.Second)
	require.NoError(t, err)

	tracker.RecordFailure()
	assert.False(t, tracker.IsHealthy())

	tracker.RecordSuccess()
	assert.True(t, tracker.IsHealthy())
}

func TestTracker_CooldownBoundary(t *testing.T) {
	cooldown := 10 * time.Second
	now := time.Now()

	tests := []struct {
		name        string
		elapsed     time.Duration
		wantHealthy bool
	}{
		{name: "before cooldown", elapsed: 9 * time.Second, wantHealthy: false},
		{name: "at exact cooldown boundary", elapsed: 10 * time.Second, wantHealthy: true},
		{name: "after cooldown", elapsed: 11 * time.Second, wantHealthy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, err := embed.NewTracker(cooldown)
			require.NoError(t, err)
			tracker.SetNowFunc(func() time.Time { return now })

			tracker.RecordFailure()
			assert.False(t, tracker.IsHealthy(), "should be unhealthy immediately after failure")

			tracker.SetNowFunc(func() time.Time { return now.Add(tt.elapsed) })
			assert.Equal(t, tt.wantHealthy, tracker.IsHealthy())
		})
	}
}

func TestTracker_Metrics(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	cooldownEnd := now.Add(10 * time.Second)

	tests := []struct {
		name  string
		setup func(tracker *embed.Tracker)
		want  health.Metrics
	}{
		{
			name:  "initial state",
			setup: func(tracker *embed.Tracker) {},
			want:  health.Metrics{Available: true},
		},
		{
			name: "single failure",
			setup: func(tracker *embed.Tracker) {
				tracker.SetNowFunc(func() time.Time { return now })
				tracker.RecordFailure()
			},
			want: health.Metrics{
				Available:     false,
				FailureCount:  1,
				LastFailureAt: &now,
				CooldownUntil: &cooldownEnd,
			},
		},
		{
			name: "cooldown expiry clears the deadline",
			setup: func(tracker *embed.Tracker) {
				tracker.SetNowFunc(func() time.Time { return now })
				tracker.RecordFailure()
				tracker.SetNowFunc(func() time.Time { return now.Add(10 * time.Second) })
			},
			want: health.Metrics{
				Available:     true,
				FailureCount:  1,
				LastFailureAt: &now,
			},
		},
		{
			name: "failure count is cumulative across recoveries",
			setup: func(tracker *embed.Tracker) {
				tracker.SetNowFunc(func() time.Time { return now })
				tracker.RecordFailure()
				tracker.RecordFailure()
				tracker.RecordSuccess()
			},
			want: health.Metrics{
				Available:     true,
				FailureCount:  2,
				LastFailureAt: &now,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, err := embed.NewTracker(10 * time.Second)
			require.NoError(t, err)
			tt.setup(tracker)
			assert.Equal(t, tt.want, tracker.Metrics())
		})
	}
}

func TestWithTracking_RecordsOutcomes(t *testing.T) {
	ctx := context.Background()
	fake := newFakeEmbedder(3)
	fake.errs = []error{mnemoerr.New(mnemoerr.CodeEmbedUpstreamFailure, "down")}

	tracker, err := embed.NewTracker(30 * time.Second)
	require.NoError(t, err)
	embedder := embed.WithTracking(fake, tracker)

	_, err = embedder.Embed(ctx, []string{"alpha"})
	require.Error(t, err)
	assert.False(t, tracker.IsHealthy())

	_, err = embedder.Embed(ctx, []string{"alpha"})
	require.NoError(t, err)
	assert.True(t, tracker.IsHealthy())
	assert.Equal(t, int64(1), tracker.Metrics().FailureCount)
}

// Run with -race: record and read concurrently without corrupting state.
func TestTracker_ConcurrentAccess(t *testing.T) {
	tracker, err := embed.NewTracker(10 * time.Second)
	require.NoError(t, err)

	const goroutines = 10
	const iterations = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				_ = tracker.Metrics()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				tracker.RecordFailure()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				tracker.RecordSuccess()
			}
		}()
	}
	wg.Wait()

	m := tracker.Metrics()
	assert.LessOrEqual(t, m.FailureCount, int64(goroutines*iterations))
}
