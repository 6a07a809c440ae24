package mount

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mmcdole/hddsync/internal/domain"
)

// DefaultRetryInterval is the wait between busy unmount attempts
const DefaultRetryInterval = 60 * time.Second

// BlockDevice is one row of the mount table query
type BlockDevice struct {
	Path       string // Device node
	UUID       string // Filesystem UUID, empty if none
	Mountpoint string // Empty when not mounted
}

// Platform is the OS mount primitive set
type Platform interface {
	// Query lists block devices with their UUID and current mountpoint
	Query(ctx context.Context) ([]BlockDevice, error)

	// Mount attaches the volume; the mountpoint is discovered by a later Query
	Mount(ctx context.Context, vol domain.TargetVolume) error

	// Unmount detaches the volume; any error is treated as "busy"
	Unmount(ctx context.Context, vol domain.TargetVolume, mountpoint string) error
}

// Manager implements domain.VolumeMounter on top of a Platform.
// Mount fails fast; Unmount retries busy detaches until it succeeds.
type Manager struct {
	platform Platform
	clock    clockwork.Clock
	retry    time.Duration
	logger   *slog.Logger
}

// Option customizes a Manager
type Option func(*Manager)

// WithClock replaces the clock used for retry waits
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithRetryInterval sets the wait between busy unmount attempts
func WithRetryInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retry = d
		}
	}
}

// NewManager creates a mount lifecycle manager
func NewManager(platform Platform, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		platform: platform,
		clock:    clockwork.NewRealClock(),
		retry:    DefaultRetryInterval,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mountpoint returns where the filesystem with uuid is mounted, or "" if it is not
func (m *Manager) Mountpoint(ctx context.Context, uuid string) (string, error) {
	devices, err := m.platform.Query(ctx)
	if err != nil {
		return "", fmt.Errorf("query mounts: %w", err)
	}
	for _, dev := range devices {
		if dev.UUID != "" && strings.EqualFold(dev.UUID, uuid) {
			return dev.Mountpoint, nil
		}
	}
	return "", nil
}

// Mount returns the volume's mountpoint, mounting it only when it is not
// already mounted.
func (m *Manager) Mount(ctx context.Context, vol domain.TargetVolume) (string, error) {
	mountpoint, err := m.Mountpoint(ctx, vol.UUID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMountFailed, err)
	}
	if mountpoint != "" {
		m.logger.Info("volume already mounted", "dev", vol.DevNode, "mountpoint", mountpoint)
		return mountpoint, nil
	}

	m.logger.Info("mounting volume", "dev", vol.DevNode, "uuid", vol.UUID)
	if err := m.platform.Mount(ctx, vol); err != nil {
		m.logger.Error("error mounting partition", "dev", vol.DevNode, "error", err)
		return "", fmt.Errorf("%w: %s: %w", domain.ErrMountFailed, vol.DevNode, err)
	}

	mountpoint, err = m.Mountpoint(ctx, vol.UUID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMountFailed, err)
	}
	if mountpoint == "" {
		return "", fmt.Errorf("%w: %s not in mount table after mount", domain.ErrMountFailed, vol.DevNode)
	}

	m.logger.Info("volume mounted", "dev", vol.DevNode, "mountpoint", mountpoint)
	return mountpoint, nil
}

// Unmount detaches the volume, retrying every interval while it is busy.
// A failed mount table query counts as "maybe still mounted" and is retried
// too. There is no attempt limit; only ctx cancellation ends the loop early.
func (m *Manager) Unmount(ctx context.Context, vol domain.TargetVolume) error {
	for attempt := 1; ; attempt++ {
		mountpoint, err := m.Mountpoint(ctx, vol.UUID)
		switch {
		case err != nil:
			m.logger.Warn("cannot tell whether volume is mounted, waiting to try again",
				"dev", vol.DevNode,
				"attempt", attempt,
				"retry_in", m.retry,
				"error", err,
			)
		case mountpoint == "":
			if attempt == 1 {
				m.logger.Debug("volume not mounted, nothing to unmount", "dev", vol.DevNode)
			} else {
				m.logger.Info("volume no longer mounted", "dev", vol.DevNode, "attempts", attempt)
			}
			return nil
		default:
			err = m.platform.Unmount(ctx, vol, mountpoint)
			if err == nil {
				m.logger.Info("volume unmounted", "dev", vol.DevNode, "attempts", attempt)
				return nil
			}
			m.logger.Warn("unmount failed, waiting to try again",
				"dev", vol.DevNode,
				"attempt", attempt,
				"retry_in", m.retry,
				"error", err,
			)
		}

		select {
		case <-m.clock.After(m.retry):
		case <-ctx.Done():
			return fmt.Errorf("unmount %s abandoned: %w", vol.DevNode, ctx.Err())
		}
	}
}
