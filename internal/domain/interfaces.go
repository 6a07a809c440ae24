package domain

import "context"

// Token is an access token returned by PlaylistSource.Authenticate
type Token string

// PlaylistSource is the remote catalog the volume mirrors.
// The token is passed explicitly; implementations hold no credential state.
type PlaylistSource interface {
	Authenticate(ctx context.Context) (Token, error)
	FetchPlaylist(ctx context.Context, token Token) (map[string]PlaylistEntry, error)
}

// StateStore persists the SyncRecord on the volume itself
type StateStore interface {
	// Load returns an empty record when nothing has been synced yet
	Load(targetPath string) (SyncRecord, error)

	// Save overwrites the persisted record atomically
	Save(targetPath string, record SyncRecord) error
}

// VolumeMounter owns the mount lifecycle of the target volume
type VolumeMounter interface {
	// Mount returns the mountpoint, mounting only when needed
	Mount(ctx context.Context, vol TargetVolume) (string, error)

	// Unmount blocks until the volume is detached or ctx is done
	Unmount(ctx context.Context, vol TargetVolume) error
}

// EventSource produces filtered device events until ctx is done.
// An error from Subscribe means the channel could not be opened at all.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan DeviceEvent, error)
}

// Syncer runs the diff and transfer for one mounted volume
type Syncer interface {
	Sync(ctx context.Context, targetPath string) (*SyncResult, error)
}

// Notifier sends the completion message
type Notifier interface {
	Notify(ctx context.Context) error
}

// HistoryStore keeps a host-side log of finished cycles
type HistoryStore interface {
	Record(result CycleResult) error
	Recent(limit int) ([]CycleResult, error)
	Close() error
}

// SyncResult summarizes a completed (or failed) sync of one volume
type SyncResult struct {
	Changes *ChangeSet
	Report  *TransferReport
	Saved   bool // Whether the record was written
	DryRun  bool
}
