package store

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStateStore_LoadMissingIsEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/media/disk", 0o755))

	record, err := NewStateStore(fs, quietLogger()).Load("/media/disk")
	require.NoError(t, err)
	assert.NotNil(t, record)
	assert.Empty(t, record)
}

func TestStateStore_SaveThenLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/media/disk", 0o755))
	s := NewStateStore(fs, quietLogger())

	record := domain.SyncRecord{
		"A": {ID: "A", Path: "/srv/a.mp4", Extra: map[string]json.RawMessage{"Name": json.RawMessage(`"Alpha"`)}},
		"B": {ID: "B", Path: "/srv/b.mkv"},
	}
	require.NoError(t, s.Save("/media/disk", record))

	loaded, err := s.Load("/media/disk")
	require.NoError(t, err)
	assert.Equal(t, record, loaded)

	// The temp file never survives a successful save
	exists, err := afero.Exists(fs, "/media/disk/"+recordTmpFile)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStateStore_FileFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/media/disk", 0o755))
	s := NewStateStore(fs, quietLogger())

	require.NoError(t, s.Save("/media/disk", domain.SyncRecord{"A": {ID: "A", Path: "/srv/a.mp4"}}))

	data, err := afero.ReadFile(fs, "/media/disk/playlist.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":{"Id":"A","Path":"/srv/a.mp4"}}`, string(data))
}

func TestStateStore_SaveIsDeterministic(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/media/disk", 0o755))
	s := NewStateStore(fs, quietLogger())

	record := domain.SyncRecord{
		"A": {ID: "A", Path: "/srv/a.mp4"},
		"B": {ID: "B", Path: "/srv/b.mp4"},
		"C": {ID: "C", Path: "/srv/c.mp4"},
	}
	require.NoError(t, s.Save("/media/disk", record))
	first, err := afero.ReadFile(fs, "/media/disk/playlist.json")
	require.NoError(t, err)

	loaded, err := s.Load("/media/disk")
	require.NoError(t, err)
	require.NoError(t, s.Save("/media/disk", loaded))
	second, err := afero.ReadFile(fs, "/media/disk/playlist.json")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestStateStore_LoadCorrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/media/disk", 0o755))
	require.NoError(t, afero.WriteFile(fs, "/media/disk/playlist.json", []byte("{nope"), 0o644))

	_, err := NewStateStore(fs, quietLogger()).Load("/media/disk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestStateStore_SaveReadOnlyFs(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, base.MkdirAll("/media/disk", 0o755))
	s := NewStateStore(afero.NewReadOnlyFs(base), quietLogger())

	err := s.Save("/media/disk", domain.SyncRecord{"A": {ID: "A", Path: "/a"}})
	require.Error(t, err)

	exists, _ := afero.Exists(base, "/media/disk/playlist.json")
	assert.False(t, exists)
}
