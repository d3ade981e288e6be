// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package health carries the embedding provider availability snapshot shared
// by the status endpoint, the auto-train scheduler and the CLI.
package health

import "time"

// Metrics is a point-in-time snapshot of embedding provider health. All
// fields are safe to serialize to JSON; a nil *Metrics means no provider is
// configured at all.
type Metrics struct {
	FailureCount  int64      `json:"failure_count"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`
	Available     bool       `json:"available"`
}

// Cooling reports whether the provider is inside a failure cooldown window
// at the given instant.
func (m Metrics) Cooling(now time.Time) bool {
	return m.CooldownUntil != nil && now.Before(*m.CooldownUntil)
}
