package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mmcdole/hddsync/internal/domain"
)

// Daemon drives one sync cycle per attach event:
// mount, sync, unmount, notify, record.
type Daemon struct {
	events   domain.EventSource
	mounter  domain.VolumeMounter
	syncer   domain.Syncer
	notifier domain.Notifier
	history  domain.HistoryStore
	clock    clockwork.Clock
	newID    func() string
	logger   *slog.Logger
}

// DaemonOption customizes a Daemon
type DaemonOption func(*Daemon)

// WithDaemonClock replaces the clock used for cycle timestamps
func WithDaemonClock(clock clockwork.Clock) DaemonOption {
	return func(d *Daemon) {
		d.clock = clock
	}
}

// WithIDGenerator replaces the cycle ID generator
func WithIDGenerator(fn func() string) DaemonOption {
	return func(d *Daemon) {
		d.newID = fn
	}
}

// NewDaemon wires the cycle driver. notifier and history may be nil.
func NewDaemon(
	events domain.EventSource,
	mounter domain.VolumeMounter,
	syncer domain.Syncer,
	notifier domain.Notifier,
	history domain.HistoryStore,
	logger *slog.Logger,
	opts ...DaemonOption,
) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		events:   events,
		mounter:  mounter,
		syncer:   syncer,
		notifier: notifier,
		history:  history,
		clock:    clockwork.NewRealClock(),
		newID:    uuid.NewString,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run subscribes to device events and handles them one at a time until ctx
// is done. A subscription failure is returned immediately.
func (d *Daemon) Run(ctx context.Context) error {
	events, err := d.events.Subscribe(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrMonitorUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrMonitorUnavailable, err)
	}

	d.logger.Info("waiting for target volume")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: event stream closed", domain.ErrMonitorUnavailable)
			}
			d.RunCycle(ctx, ev)
		}
	}
}

// RunCycle handles a single attach event and returns its history entry.
// Once the mount succeeded, unmount is always attempted.
func (d *Daemon) RunCycle(ctx context.Context, ev domain.DeviceEvent) domain.CycleResult {
	vol := ev.Volume()
	result := domain.CycleResult{
		ID:         d.newID(),
		VolumeUUID: vol.UUID,
		DevNode:    vol.DevNode,
		StartedAt:  d.clock.Now(),
	}
	logger := d.logger.With("cycle", result.ID, "dev", vol.DevNode)
	logger.Info("target volume attached", "uuid", vol.UUID, "fstype", vol.FSType)

	mountpoint, err := d.mounter.Mount(ctx, vol)
	if err != nil {
		logger.Error("aborting cycle, mount failed", "error", err)
		result.Outcome = classify(ctx, err, domain.OutcomeMountFailed)
		result.Error = err.Error()
		return d.finish(logger, result)
	}
	vol.Mountpoint = mountpoint
	result.Mountpoint = mountpoint

	syncResult, syncErr := d.syncer.Sync(ctx, mountpoint)
	countResults(&result, syncResult)

	switch {
	case syncErr != nil:
		result.Outcome = classify(ctx, syncErr, domain.OutcomeFailed)
		result.Error = syncErr.Error()
		logger.Error("sync failed", "error", syncErr)
	case syncResult == nil:
		result.Outcome = domain.OutcomeNoop
	case syncResult.DryRun && !syncResult.Changes.Empty():
		result.Outcome = domain.OutcomeDryRun
	case syncResult.Changes.Empty():
		result.Outcome = domain.OutcomeNoop
	default:
		result.Outcome = domain.OutcomeSynced
	}

	if err := d.mounter.Unmount(ctx, vol); err != nil {
		logger.Error("volume left mounted", "mountpoint", mountpoint, "error", err)
		if result.Outcome.Succeeded() {
			result.Outcome = domain.OutcomeCancelled
			result.Error = err.Error()
		}
		return d.finish(logger, result)
	}

	if result.Outcome.Succeeded() && d.notifier != nil {
		if err := d.notifier.Notify(ctx); err != nil {
			logger.Warn("failed to send notification", "error", err)
		} else {
			result.Notified = true
		}
	}

	return d.finish(logger, result)
}

func (d *Daemon) finish(logger *slog.Logger, result domain.CycleResult) domain.CycleResult {
	result.FinishedAt = d.clock.Now()
	logger.Info("cycle finished",
		"outcome", result.Outcome,
		"deleted", result.Deleted,
		"copied", result.Copied,
		"failed", result.Failed,
		"notified", result.Notified,
		"duration", result.Duration(),
	)

	if d.history != nil {
		if err := d.history.Record(result); err != nil {
			logger.Error("failed to record cycle history", "error", err)
		}
	}
	return result
}

// classify maps a cycle error onto an outcome
func classify(ctx context.Context, err error, fallback domain.CycleOutcome) domain.CycleOutcome {
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return domain.OutcomeCancelled
	case errors.Is(err, domain.ErrMountFailed):
		return domain.OutcomeMountFailed
	case errors.Is(err, domain.ErrAuthFailed):
		return domain.OutcomeAuthFailed
	case errors.Is(err, domain.ErrFetchFailed):
		return domain.OutcomeFetchFailed
	case errors.Is(err, domain.ErrStateFailed):
		return domain.OutcomeStateFailed
	case errors.Is(err, domain.ErrTransferFailed):
		return domain.OutcomeTransferFailed
	default:
		return fallback
	}
}

func countResults(result *domain.CycleResult, sr *domain.SyncResult) {
	if sr == nil || sr.Report == nil {
		return
	}
	result.Deleted = len(sr.Report.Deleted) - sr.Report.DeleteFailures()
	result.Copied = len(sr.Report.Copied) - sr.Report.CopyFailures()
	result.Failed = sr.Report.DeleteFailures() + sr.Report.CopyFailures()
}
