//go:build linux

package mount

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mmcdole/hddsync/internal/domain"
	"golang.org/x/sys/unix"
)

// Mount creates <root>/<uuid> and mounts the device there
func (p *SyscallPlatform) Mount(_ context.Context, vol domain.TargetVolume) error {
	if vol.FSType == "" {
		return fmt.Errorf("unknown filesystem type for %s", vol.DevNode)
	}

	target := p.mountpointFor(vol.UUID)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("create mountpoint: %w", err)
	}

	fstype := kernelFSType(vol.FSType)
	flags := uintptr(unix.MS_NOSUID | unix.MS_NODEV | unix.MS_NOEXEC)
	if err := unix.Mount(vol.DevNode, target, fstype, flags, ""); err != nil {
		os.Remove(target) // Only succeeds if still empty
		return fmt.Errorf("mount %s on %s as %s: %w", vol.DevNode, target, fstype, err)
	}

	p.logger.Debug("mounted", "dev", vol.DevNode, "target", target, "fstype", fstype)
	return nil
}

// Unmount detaches the mountpoint; EBUSY maps to domain.ErrDeviceBusy
func (p *SyscallPlatform) Unmount(_ context.Context, vol domain.TargetVolume, mountpoint string) error {
	if err := unix.Unmount(mountpoint, 0); err != nil {
		if errors.Is(err, unix.EBUSY) {
			return fmt.Errorf("%w: %s", domain.ErrDeviceBusy, mountpoint)
		}
		return fmt.Errorf("unmount %s: %w", mountpoint, err)
	}

	// Remove the directory we created; leave foreign mountpoints alone
	if mountpoint == p.mountpointFor(vol.UUID) {
		os.Remove(mountpoint)
	}
	return nil
}
