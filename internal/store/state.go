package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/spf13/afero"
)

// Record file names at the volume root
const (
	RecordFile    = domain.RecordFilename
	recordTmpFile = domain.RecordTmpFilename
)

// StateStore keeps the SyncRecord on the target volume as playlist.json
type StateStore struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewStateStore creates a store on fs; nil uses the OS filesystem
func NewStateStore(fs afero.Fs, logger *slog.Logger) *StateStore {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StateStore{fs: fs, logger: logger}
}

// Load reads the record from targetPath.
// A volume that has never been synced yields an empty record.
func (s *StateStore) Load(targetPath string) (domain.SyncRecord, error) {
	path := filepath.Join(targetPath, RecordFile)

	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.logger.Debug("no sync record on volume", "path", path)
			return domain.SyncRecord{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	record := domain.SyncRecord{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return record, nil
}

// Save replaces the record on targetPath.
// The data is written to a temp file, synced and renamed over playlist.json.
func (s *StateStore) Save(targetPath string, record domain.SyncRecord) error {
	if record == nil {
		record = domain.SyncRecord{}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode sync record: %w", err)
	}

	tmp := filepath.Join(targetPath, recordTmpFile)
	final := filepath.Join(targetPath, RecordFile)

	f, err := s.fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		s.fs.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}

	if err := s.fs.Rename(tmp, final); err != nil {
		s.fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	s.logger.Debug("saved sync record", "path", final, "entries", len(record))
	return nil
}
