//go:build !linux

package mount

import (
	"context"
	"fmt"
	"runtime"

	"github.com/mmcdole/hddsync/internal/domain"
)

func (p *SyscallPlatform) Mount(context.Context, domain.TargetVolume) error {
	return fmt.Errorf("syscall mounts are not supported on %s", runtime.GOOS)
}

func (p *SyscallPlatform) Unmount(context.Context, domain.TargetVolume, string) error {
	return fmt.Errorf("syscall unmounts are not supported on %s", runtime.GOOS)
}
