// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package schedule

// TickFunc exposes the wrapped tick closure for a job so tests can fire
// ticks directly instead of waiting out a cron interval.
func (s *Scheduler) TickFunc(job Job, spec string) func() {
	return s.wrap(job, spec)
}
