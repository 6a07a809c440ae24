package domain

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"
)

// Names the sync record occupies at the volume root
const (
	RecordFilename    = "playlist.json"
	RecordTmpFilename = ".playlist.json.tmp"
)

// IsReservedFilename reports whether a playlist file named name would land on
// top of the sync record. Removable volumes are usually case-insensitive.
func IsReservedFilename(name string) bool {
	return strings.EqualFold(name, RecordFilename) || strings.EqualFold(name, RecordTmpFilename)
}

// PlaylistEntry is one item of the remote playlist.
// Fields the server returns beyond Id and Path are kept verbatim in Extra so
// that a record written to the volume round-trips them.
type PlaylistEntry struct {
	ID    string                     // Server-specific unique identifier
	Path  string                     // Absolute source path as the server sees it
	Extra map[string]json.RawMessage // Passthrough fields (Name, Type, ...)
}

// Reserved JSON keys of a playlist entry
const (
	entryKeyID   = "Id"
	entryKeyPath = "Path"
)

// Filename returns the on-volume filename for the entry.
// Server paths always use forward slashes on the platforms we target.
func (e PlaylistEntry) Filename() string {
	if e.Path == "" {
		return ""
	}
	return path.Base(e.Path)
}

// MarshalJSON writes the entry as a flat object: {"Id": ..., "Path": ..., ...extra}
func (e PlaylistEntry) MarshalJSON() ([]byte, error) {
	obj := make(map[string]json.RawMessage, len(e.Extra)+2)
	for k, v := range e.Extra {
		obj[k] = v
	}

	id, err := json.Marshal(e.ID)
	if err != nil {
		return nil, err
	}
	p, err := json.Marshal(e.Path)
	if err != nil {
		return nil, err
	}
	obj[entryKeyID] = id
	obj[entryKeyPath] = p

	return json.Marshal(obj)
}

// UnmarshalJSON reads a flat object, splitting Id/Path from passthrough fields
func (e *PlaylistEntry) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}

	var entry PlaylistEntry
	if raw, ok := obj[entryKeyID]; ok {
		if err := json.Unmarshal(raw, &entry.ID); err != nil {
			return fmt.Errorf("invalid %s: %w", entryKeyID, err)
		}
		delete(obj, entryKeyID)
	}
	if raw, ok := obj[entryKeyPath]; ok {
		if err := json.Unmarshal(raw, &entry.Path); err != nil {
			return fmt.Errorf("invalid %s: %w", entryKeyPath, err)
		}
		delete(obj, entryKeyPath)
	}
	if len(obj) > 0 {
		entry.Extra = obj
	}

	*e = entry
	return nil
}

// SyncRecord maps entry IDs to the entries last known to be on the volume.
// Every key corresponds to a file at <mountpoint>/<entry.Filename()>.
type SyncRecord map[string]PlaylistEntry

// Clone returns a shallow copy that can be modified independently
func (r SyncRecord) Clone() SyncRecord {
	out := make(SyncRecord, len(r))
	for id, entry := range r {
		out[id] = entry
	}
	return out
}

// IDs returns the record's keys in sorted order
func (r SyncRecord) IDs() []string {
	ids := make([]string, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TargetVolume is the removable volume being synced during one cycle
type TargetVolume struct {
	DevNode    string // Block device node, e.g. /dev/sdb1
	UUID       string // Filesystem UUID
	FSType     string // Filesystem type from udev (ID_FS_TYPE), may be empty
	Mountpoint string // Empty until mounted
}

// DeviceAction is the udev action of a device event
type DeviceAction string

const (
	DeviceActionAdd    DeviceAction = "add"
	DeviceActionRemove DeviceAction = "remove"
	DeviceActionOther  DeviceAction = "other"
)

// DeviceEvent is a block subsystem hotplug notification
type DeviceEvent struct {
	Action    DeviceAction
	Subsystem string
	FSUUID    string
	FSType    string
	DevNode   string
}

// Volume converts the event into a TargetVolume
func (e DeviceEvent) Volume() TargetVolume {
	return TargetVolume{
		DevNode: e.DevNode,
		UUID:    e.FSUUID,
		FSType:  e.FSType,
	}
}

// DeleteOp removes one file from the volume
type DeleteOp struct {
	ID   string // Record key being removed
	Path string // Absolute on-volume path
}

// CopyOp copies one source file onto the volume
type CopyOp struct {
	ID     string // Remote entry ID being added
	Source string // Absolute source path (after source override)
	Dest   string // Absolute on-volume path
}

// ChangeSet is the work needed to make the volume match the remote playlist.
// Working is the record that results when every operation succeeds.
type ChangeSet struct {
	ToDelete []DeleteOp
	ToCopy   []CopyOp
	Working  SyncRecord
	Skipped  []string // Entry IDs left out because their filename is reserved
}

// Empty reports whether the change set has nothing to do
func (c *ChangeSet) Empty() bool {
	return c == nil || (len(c.ToDelete) == 0 && len(c.ToCopy) == 0)
}

// DeletePaths returns the on-volume paths to delete
func (c *ChangeSet) DeletePaths() []string {
	paths := make([]string, len(c.ToDelete))
	for i, op := range c.ToDelete {
		paths[i] = op.Path
	}
	return paths
}

// CopyPaths returns the source paths to copy
func (c *ChangeSet) CopyPaths() []string {
	paths := make([]string, len(c.ToCopy))
	for i, op := range c.ToCopy {
		paths[i] = op.Source
	}
	return paths
}

// FileResult is the outcome of a single delete or copy
type FileResult struct {
	ID   string
	Path string
	Err  error
}

// TransferReport collects per-file outcomes of both batches
type TransferReport struct {
	Deleted []FileResult
	Copied  []FileResult
}

// DeleteFailures counts failed deletions
func (r *TransferReport) DeleteFailures() int {
	return countFailures(r.Deleted)
}

// CopyFailures counts failed copies
func (r *TransferReport) CopyFailures() int {
	return countFailures(r.Copied)
}

func countFailures(results []FileResult) int {
	n := 0
	for _, res := range results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// CycleOutcome classifies how a sync cycle ended
type CycleOutcome string

const (
	OutcomeSynced         CycleOutcome = "synced"
	OutcomeNoop           CycleOutcome = "noop"
	OutcomeDryRun         CycleOutcome = "dry_run"
	OutcomeMountFailed    CycleOutcome = "mount_failed"
	OutcomeAuthFailed     CycleOutcome = "auth_failed"
	OutcomeFetchFailed    CycleOutcome = "fetch_failed"
	OutcomeStateFailed    CycleOutcome = "state_failed"
	OutcomeTransferFailed CycleOutcome = "transfer_failed"
	OutcomeCancelled      CycleOutcome = "cancelled"
	OutcomeFailed         CycleOutcome = "failed" // Unclassified error
)

// Succeeded reports whether the cycle reached completion
func (o CycleOutcome) Succeeded() bool {
	return o == OutcomeSynced || o == OutcomeNoop || o == OutcomeDryRun
}

// CycleResult is the history entry for one attach event
type CycleResult struct {
	ID         string       `json:"id"`
	VolumeUUID string       `json:"volume_uuid"`
	DevNode    string       `json:"dev_node"`
	Mountpoint string       `json:"mountpoint,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Outcome    CycleOutcome `json:"outcome"`
	Deleted    int          `json:"deleted"`
	Copied     int          `json:"copied"`
	Failed     int          `json:"failed"`
	Notified   bool         `json:"notified"`
	Error      string       `json:"error,omitempty"`
}

// Duration returns how long the cycle ran
func (c CycleResult) Duration() time.Duration {
	return c.FinishedAt.Sub(c.StartedAt)
}
