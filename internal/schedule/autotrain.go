// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package schedule

import (
	"context"
	"log/slog"

	"github.com/mnemo-dev/mnemo/internal/train"
	mnemoerr "github.com/mnemo-dev/mnemo/pkg/errors"
	"github.com/mnemo-dev/mnemo/pkg/health"
)

// Trainer is the slice of the training service the auto-train job needs.
type Trainer interface {
	Train(ctx context.Context, req train.Request) (<-chan train.ProgressEvent, error)
}

// AvailabilityReporter tells whether the embedding provider is usable.
type AvailabilityReporter interface {
	Metrics() health.Metrics
}

// AutoTrainJob trains every untrained item across both pools. Runs are
// skipped while the embedding provider is cooling down after failures, and
// while a manually started batch holds the trainer.
type AutoTrainJob struct {
	trainer Trainer
	health  AvailabilityReporter
	logger  *slog.Logger
}

// NewAutoTrainJob creates the job. health may be nil when provider health is
// not tracked; the cooldown check is then skipped.
func NewAutoTrainJob(trainer Trainer, health AvailabilityReporter, logger *slog.Logger) *AutoTrainJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoTrainJob{
		trainer: trainer,
		health:  health,
		logger:  logger.With(slog.String("component", "schedule"), slog.String("job", "auto-train")),
	}
}

func (j *AutoTrainJob) Name() string { return "auto-train" }

// Run starts one training batch over all untrained items and drains its
// progress stream into the log.
func (j *AutoTrainJob) Run(ctx context.Context) error {
	if j.health != nil {
		if m := j.health.Metrics(); !m.Available {
			j.logger.Info("run skipped: embedding provider cooling down",
				slog.Int64("failure_count", m.FailureCount))
			return nil
		}
	}

	events, err := j.trainer.Train(ctx, train.Request{})
	if err != nil {
		switch {
		case mnemoerr.IsConflict(err):
			j.logger.Info("run skipped: a training batch is already running")
			return nil
		case mnemoerr.IsMissingCredentials(err):
			j.logger.Info("run skipped: no embedding credentials configured")
			return nil
		default:
			return err
		}
	}

	for ev := range events {
		switch ev.Type {
		case train.EventWarning:
			j.logger.Warn("item skipped",
				slog.String("item_id", ev.ItemID),
				slog.String("message", ev.Message))
		case train.EventError:
			if ev.ItemID == "" {
				j.logger.Error("batch failed", slog.String("message", ev.Message))
			} else {
				j.logger.Warn("item failed",
					slog.String("item_id", ev.ItemID),
					slog.String("message", ev.Message))
			}
		case train.EventComplete:
			if ev.Tally != nil {
				j.logger.Info("batch complete",
					slog.Int("trained", ev.Tally.Trained),
					slog.Int("failed", ev.Tally.Failed),
					slog.Int("skipped", ev.Tally.Skipped))
			}
		}
	}
	return nil
}
