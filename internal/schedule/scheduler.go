// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

// Package schedule runs recurring maintenance jobs on cron specs.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
)

// Job is one recurring maintenance task.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler dispatches registered jobs on cron ticks. A tick is skipped when
// the previous run of the same job is still executing.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu  sync.Mutex
	ctx context.Context
}

// New creates a Scheduler speaking standard five-field cron syntax plus
// @every duration descriptors, the same grammar config validation accepts.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		logger: logger.With(slog.String("component", "schedule")),
	}
}

// Register adds a job under the given cron spec.
func (s *Scheduler) Register(spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, s.wrap(job, spec)); err != nil {
		return mnemoerr.Wrapf(err, mnemoerr.CodeScheduleSpecInvalid,
			"cron spec %q for job %s", spec, job.Name())
	}
	s.logger.Info("job scheduled", slog.String("job", job.Name()), slog.String("spec", spec))
	return nil
}

// Start begins dispatching ticks. Jobs run with ctx as their base context,
// so cancelling it cancels in-flight runs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

// Stop halts dispatch and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			s.logger.Info("job tick skipped: previous run still executing",
				slog.String("job", job.Name()))
			return
		}
		defer running.Store(false)

		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}

		logger := s.logger.With(slog.String("job", job.Name()), slog.String("spec", spec))
		start := time.Now()
		logger.Info("job started")
		if err := job.Run(ctx); err != nil {
			logger.Error("job failed",
				slog.Any("error", err),
				slog.Duration("duration", time.Since(start)))
			return
		}
		logger.Info("job finished", slog.Duration("duration", time.Since(start)))
	}
}
