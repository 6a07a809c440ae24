package mount

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// DefaultByUUIDDir is where udev publishes filesystem UUID symlinks
const DefaultByUUIDDir = "/dev/disk/by-uuid"

// SyscallPlatform mounts with mount(2) under a fixed root directory.
// The mount table comes from gopsutil; UUIDs from the by-uuid symlinks.
type SyscallPlatform struct {
	mountRoot  string
	byUUIDDir  string
	partitions func(ctx context.Context, all bool) ([]disk.PartitionStat, error)
	logger     *slog.Logger
}

// NewSyscallPlatform creates a platform mounting volumes at <mountRoot>/<uuid>
func NewSyscallPlatform(mountRoot string, logger *slog.Logger) *SyscallPlatform {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyscallPlatform{
		mountRoot:  mountRoot,
		byUUIDDir:  DefaultByUUIDDir,
		partitions: disk.PartitionsWithContext,
		logger:     logger,
	}
}

// Query joins the by-uuid symlinks with the current mount table
func (p *SyscallPlatform) Query(ctx context.Context) ([]BlockDevice, error) {
	entries, err := os.ReadDir(p.byUUIDDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // No filesystems with UUIDs attached
		}
		return nil, fmt.Errorf("read %s: %w", p.byUUIDDir, err)
	}

	parts, err := p.partitions(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}

	mounted := make(map[string]string, len(parts))
	for _, part := range parts {
		dev := resolveDevice(part.Device)
		// Keep the first mountpoint for devices mounted more than once
		if _, seen := mounted[dev]; !seen {
			mounted[dev] = part.Mountpoint
		}
	}

	devices := make([]BlockDevice, 0, len(entries))
	for _, entry := range entries {
		dev, err := filepath.EvalSymlinks(filepath.Join(p.byUUIDDir, entry.Name()))
		if err != nil {
			p.logger.Debug("skipping dangling uuid link", "uuid", entry.Name(), "error", err)
			continue
		}
		devices = append(devices, BlockDevice{
			Path:       dev,
			UUID:       entry.Name(),
			Mountpoint: mounted[dev],
		})
	}

	return devices, nil
}

// mountpointFor returns the directory a volume is mounted on by this platform
func (p *SyscallPlatform) mountpointFor(uuid string) string {
	return filepath.Join(p.mountRoot, uuid)
}

// kernelFSTypes maps udev's ID_FS_TYPE onto the driver name mount(2) expects.
// udev reports NTFS as "ntfs", which current kernels either lack or serve as a
// read-only alias; ntfs3 mounts it read-write.
var kernelFSTypes = map[string]string{
	"ntfs": "ntfs3",
}

// kernelFSType returns the filesystem type to pass to mount(2)
func kernelFSType(fstype string) string {
	fstype = strings.ToLower(fstype)
	if mapped, ok := kernelFSTypes[fstype]; ok {
		return mapped
	}
	return fstype
}

// resolveDevice follows symlinked device names (/dev/disk/by-label/...) to the node
func resolveDevice(dev string) string {
	if resolved, err := filepath.EvalSymlinks(dev); err == nil {
		return resolved
	}
	return dev
}
