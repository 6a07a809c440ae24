package mount

import (
	"fmt"
	"log/slog"

	"github.com/mmcdole/hddsync/internal/adapter"
)

// NewPlatform selects the mount backend configured in drive.mount_method
func NewPlatform(cfg *adapter.DriveConfig, logger *slog.Logger) (Platform, error) {
	switch cfg.MountMethod {
	case adapter.MountMethodSyscall, "":
		return NewSyscallPlatform(cfg.MountRoot, logger), nil
	case adapter.MountMethodPmount:
		return NewPmountPlatform(ExecRunner{}, logger), nil
	default:
		return nil, fmt.Errorf("unknown mount method: %s", cfg.MountMethod)
	}
}
