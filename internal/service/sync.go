package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mmcdole/hddsync/internal/domain"
)

// Policy decides what is persisted after a partially failed transfer
type Policy string

const (
	// PolicyConservative persists nothing unless every operation succeeded
	PolicyConservative Policy = "conservative"

	// PolicyPerFile persists the operations that succeeded
	PolicyPerFile Policy = "per_file"
)

// SyncOptions tunes an Engine
type SyncOptions struct {
	SourcePath string // Alternate source root, empty to use server paths
	Policy     Policy
	DryRun     bool
}

// Engine implements domain.Syncer: fetch, diff, transfer, persist
type Engine struct {
	source   domain.PlaylistSource
	state    domain.StateStore
	transfer *Transfer
	opts     SyncOptions
	logger   *slog.Logger
}

// NewEngine creates a sync engine
func NewEngine(source domain.PlaylistSource, state domain.StateStore, transfer *Transfer, opts SyncOptions, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Policy == "" {
		opts.Policy = PolicyConservative
	}
	return &Engine{
		source:   source,
		state:    state,
		transfer: transfer,
		opts:     opts,
		logger:   logger,
	}
}

// Sync brings the volume mounted at targetPath in line with the remote playlist.
// The record is written at most once, and never for a no-op or dry run.
func (e *Engine) Sync(ctx context.Context, targetPath string) (*domain.SyncResult, error) {
	token, err := e.source.Authenticate(ctx)
	if err != nil {
		e.logger.Error("authentication failed", "error", err)
		return nil, err
	}

	remote, err := e.source.FetchPlaylist(ctx, token)
	if err != nil {
		e.logger.Error("failed to fetch playlist", "error", err)
		return nil, err
	}

	persisted, err := e.state.Load(targetPath)
	if err != nil {
		e.logger.Error("failed to load sync record", "target", targetPath, "error", err)
		return nil, fmt.Errorf("%w: %w", domain.ErrStateFailed, err)
	}

	cs := Plan(remote, persisted, e.opts.SourcePath, targetPath)
	result := &domain.SyncResult{Changes: cs, DryRun: e.opts.DryRun}

	for _, id := range cs.Skipped {
		e.logger.Warn("skipping entry, its filename is reserved for the sync record", "id", id, "path", remote[id].Path)
	}

	e.logger.Info("computed changes",
		"remote", len(remote),
		"persisted", len(persisted),
		"delete", len(cs.ToDelete),
		"copy", len(cs.ToCopy),
	)

	if cs.Empty() {
		e.logger.Info("volume already in sync")
		return result, nil
	}

	if e.opts.DryRun {
		for _, p := range cs.DeletePaths() {
			e.logger.Info("dry run: would delete", "path", p)
		}
		for _, p := range cs.CopyPaths() {
			e.logger.Info("dry run: would copy", "source", p)
		}
		return result, nil
	}

	report, applied := e.transfer.Apply(ctx, cs, persisted)
	result.Report = report

	failed := report.DeleteFailures() + report.CopyFailures()
	attempted := len(report.Deleted) + len(report.Copied)
	pending := len(cs.ToDelete) + len(cs.ToCopy) - attempted

	if failed == 0 && pending == 0 {
		if err := e.save(targetPath, cs.Working); err != nil {
			return result, err
		}
		result.Saved = true
		return result, nil
	}

	var cause error
	switch {
	case ctx.Err() != nil:
		cause = fmt.Errorf("%w: interrupted with %d operations pending: %w", domain.ErrTransferFailed, pending, ctx.Err())
	default:
		cause = fmt.Errorf("%w: %d of %d operations failed", domain.ErrTransferFailed, failed, attempted+pending)
	}

	if e.opts.Policy == PolicyPerFile {
		if err := e.save(targetPath, applied); err != nil {
			return result, fmt.Errorf("%w; %w", cause, err)
		}
		result.Saved = true
		e.logger.Warn("saved partial sync record", "entries", len(applied))
	}

	return result, cause
}

func (e *Engine) save(targetPath string, record domain.SyncRecord) error {
	if err := e.state.Save(targetPath, record); err != nil {
		e.logger.Error("failed to save sync record", "target", targetPath, "error", err)
		return fmt.Errorf("%w: %w", domain.ErrStateFailed, err)
	}
	return nil
}
