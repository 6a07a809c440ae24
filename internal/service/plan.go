package service

import (
	"path/filepath"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/mmcdole/hddsync/internal/domain"
)

// Plan computes the change set that turns persisted into remote on the volume
// mounted at targetPath.
//
// Entries are compared by ID only; an entry whose path changed under a stable
// ID is left alone. When sourcePath is set, copies read
// <sourcePath>/<basename> instead of the server's path.
//
// Entries whose filename would collide with the sync record are never copied
// or deleted; their IDs are listed in Skipped and kept out of Working.
func Plan(remote map[string]domain.PlaylistEntry, persisted domain.SyncRecord, sourcePath, targetPath string) *domain.ChangeSet {
	remoteIDs := mapset.NewThreadUnsafeSetFromMapKeys(remote)
	persistedIDs := mapset.NewThreadUnsafeSetFromMapKeys(map[string]domain.PlaylistEntry(persisted))

	removed := persistedIDs.Difference(remoteIDs)
	added := remoteIDs.Difference(persistedIDs)

	working := persisted.Clone()
	cs := &domain.ChangeSet{}

	for _, id := range sortedIDs(removed) {
		entry := persisted[id]
		delete(working, id)
		if domain.IsReservedFilename(entry.Filename()) {
			continue
		}
		cs.ToDelete = append(cs.ToDelete, domain.DeleteOp{
			ID:   id,
			Path: filepath.Join(targetPath, entry.Filename()),
		})
	}

	for _, id := range sortedIDs(added) {
		entry := remote[id]
		if domain.IsReservedFilename(entry.Filename()) {
			cs.Skipped = append(cs.Skipped, id)
			continue
		}
		source := entry.Path
		if sourcePath != "" {
			source = filepath.Join(sourcePath, entry.Filename())
		}
		cs.ToCopy = append(cs.ToCopy, domain.CopyOp{
			ID:     id,
			Source: source,
			Dest:   filepath.Join(targetPath, entry.Filename()),
		})
		working[id] = entry
	}

	cs.Working = working
	return cs
}

func sortedIDs(set mapset.Set[string]) []string {
	ids := set.ToSlice()
	slices.Sort(ids)
	return ids
}
