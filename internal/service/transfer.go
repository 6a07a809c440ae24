package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/spf13/afero"
)

// partSuffix marks a copy that has not been renamed into place yet
const partSuffix = ".part"

// Transfer applies a change set to the filesystem
type Transfer struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewTransfer creates a transfer over fs; nil uses the OS filesystem
func NewTransfer(fs afero.Fs, logger *slog.Logger) *Transfer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transfer{fs: fs, logger: logger}
}

// Apply runs the delete batch, then the copy batch, and returns the record
// reflecting exactly the operations that succeeded.
// A failed delete halts before any copy is attempted. Cancellation stops
// between files; ops not attempted get no FileResult.
func (t *Transfer) Apply(ctx context.Context, cs *domain.ChangeSet, persisted domain.SyncRecord) (*domain.TransferReport, domain.SyncRecord) {
	report := &domain.TransferReport{}
	applied := persisted.Clone()

	for _, op := range cs.ToDelete {
		if ctx.Err() != nil {
			return report, applied
		}
		err := t.remove(op.Path)
		report.Deleted = append(report.Deleted, domain.FileResult{ID: op.ID, Path: op.Path, Err: err})
		if err != nil {
			t.logger.Error("failed to delete file", "path", op.Path, "error", err)
			continue
		}
		t.logger.Info("deleted file", "path", op.Path)
		delete(applied, op.ID)
	}

	if report.DeleteFailures() > 0 {
		t.logger.Warn("delete batch failed, skipping copies", "failed", report.DeleteFailures())
		return report, applied
	}

	for _, op := range cs.ToCopy {
		if ctx.Err() != nil {
			return report, applied
		}
		err := t.copy(ctx, op.Source, op.Dest)
		report.Copied = append(report.Copied, domain.FileResult{ID: op.ID, Path: op.Dest, Err: err})
		if err != nil {
			t.logger.Error("failed to copy file", "source", op.Source, "dest", op.Dest, "error", err)
			continue
		}
		t.logger.Info("copied file", "source", op.Source, "dest", op.Dest)
		applied[op.ID] = cs.Working[op.ID]
	}

	return report, applied
}

// remove deletes path; a file that is already gone counts as deleted
func (t *Transfer) remove(path string) error {
	if err := t.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// copy writes src to dest via dest.part so an interrupted copy never
// leaves a file under the final name
func (t *Transfer) copy(ctx context.Context, src, dest string) (err error) {
	in, err := t.fs.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	part := dest + partSuffix
	out, err := t.fs.OpenFile(part, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", part, err)
	}
	defer func() {
		if err != nil {
			out.Close()
			t.fs.Remove(part)
		}
	}()

	if _, err = io.Copy(out, &ctxReader{ctx: ctx, r: in}); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", part, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", part, err)
	}
	if err = t.fs.Rename(part, dest); err != nil {
		return fmt.Errorf("rename %s: %w", part, err)
	}
	return nil
}

// ctxReader aborts a long copy once ctx is done
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
