package service

import (
	"encoding/json"
	"testing"

	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(id, path string) domain.PlaylistEntry {
	return domain.PlaylistEntry{ID: id, Path: path}
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name       string
		remote     map[string]domain.PlaylistEntry
		persisted  domain.SyncRecord
		sourcePath string
		wantDelete []domain.DeleteOp
		wantCopy   []domain.CopyOp
		wantIDs    []string
	}{
		{
			name:      "fresh volume copies everything",
			remote:    map[string]domain.PlaylistEntry{"A": entry("A", "/srv/a.mp4"), "B": entry("B", "/srv/b.mp4")},
			persisted: domain.SyncRecord{},
			wantCopy: []domain.CopyOp{
				{ID: "A", Source: "/srv/a.mp4", Dest: "/media/disk/a.mp4"},
				{ID: "B", Source: "/srv/b.mp4", Dest: "/media/disk/b.mp4"},
			},
			wantIDs: []string{"A", "B"},
		},
		{
			name:       "removed entries are deleted by basename",
			remote:     map[string]domain.PlaylistEntry{"A": entry("A", "/srv/a.mp4")},
			persisted:  domain.SyncRecord{"A": entry("A", "/srv/a.mp4"), "B": entry("B", "/old/dir/b.mp4")},
			wantDelete: []domain.DeleteOp{{ID: "B", Path: "/media/disk/b.mp4"}},
			wantIDs:    []string{"A"},
		},
		{
			name:       "source override rewrites copy sources",
			remote:     map[string]domain.PlaylistEntry{"A": entry("A", "/server/Videos/a.mp4")},
			persisted:  domain.SyncRecord{},
			sourcePath: "/mnt/nas",
			wantCopy:   []domain.CopyOp{{ID: "A", Source: "/mnt/nas/a.mp4", Dest: "/media/disk/a.mp4"}},
			wantIDs:    []string{"A"},
		},
		{
			name:      "stable id with a new path is left alone",
			remote:    map[string]domain.PlaylistEntry{"A": entry("A", "/srv/renamed.mp4")},
			persisted: domain.SyncRecord{"A": entry("A", "/srv/a.mp4")},
			wantIDs:   []string{"A"},
		},
		{
			name:       "empty remote clears the volume",
			remote:     map[string]domain.PlaylistEntry{},
			persisted:  domain.SyncRecord{"A": entry("A", "/srv/a.mp4")},
			wantDelete: []domain.DeleteOp{{ID: "A", Path: "/media/disk/a.mp4"}},
			wantIDs:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cs := Plan(tt.remote, tt.persisted, tt.sourcePath, "/media/disk")

			assert.Equal(t, tt.wantDelete, cs.ToDelete)
			assert.Equal(t, tt.wantCopy, cs.ToCopy)
			assert.Equal(t, tt.wantIDs, cs.Working.IDs())
		})
	}
}

func TestPlan_DoesNotMutatePersisted(t *testing.T) {
	persisted := domain.SyncRecord{"A": entry("A", "/srv/a.mp4")}
	remote := map[string]domain.PlaylistEntry{"B": entry("B", "/srv/b.mp4")}

	cs := Plan(remote, persisted, "", "/media/disk")

	require.Contains(t, persisted, "A")
	assert.NotContains(t, persisted, "B")
	assert.Equal(t, []string{"B"}, cs.Working.IDs())
}

func TestPlan_WorkingKeepsRemoteMetadata(t *testing.T) {
	remote := map[string]domain.PlaylistEntry{
		"A": {ID: "A", Path: "/srv/a.mp4", Extra: map[string]json.RawMessage{"Name": json.RawMessage(`"Alpha"`)}},
	}
	cs := Plan(remote, domain.SyncRecord{}, "/mnt/nas", "/media/disk")

	// The record keeps the server's path and metadata, not the override
	assert.Equal(t, "/srv/a.mp4", cs.Working["A"].Path)
	assert.Equal(t, remote["A"].Extra, cs.Working["A"].Extra)
}

func TestPlan_NoChanges(t *testing.T) {
	remote := map[string]domain.PlaylistEntry{"A": entry("A", "/srv/a.mp4")}
	persisted := domain.SyncRecord{"A": entry("A", "/srv/a.mp4")}

	cs := Plan(remote, persisted, "", "/media/disk")
	assert.True(t, cs.Empty())
	assert.Equal(t, persisted, cs.Working)
}

func TestPlan_SkipsReservedFilenames(t *testing.T) {
	remote := map[string]domain.PlaylistEntry{
		"A": entry("A", "/srv/playlist.json"),
		"B": entry("B", "/srv/b.mp4"),
		"C": entry("C", "/srv/.PLAYLIST.JSON.TMP"),
	}
	persisted := domain.SyncRecord{"D": entry("D", "/old/Playlist.json")}

	cs := Plan(remote, persisted, "", "/media/disk")

	assert.Equal(t, []string{"A", "C"}, cs.Skipped)
	assert.Equal(t, []domain.CopyOp{{ID: "B", Source: "/srv/b.mp4", Dest: "/media/disk/b.mp4"}}, cs.ToCopy)
	// The record file itself is never deleted
	assert.Empty(t, cs.ToDelete)
	assert.Equal(t, []string{"B"}, cs.Working.IDs())
}
