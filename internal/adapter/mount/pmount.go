package mount

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/mmcdole/hddsync/internal/domain"
)

// CommandRunner abstracts exec.Command so the helpers can be faked in tests
type CommandRunner interface {
	// Run executes a command; non-zero exit is an error
	Run(ctx context.Context, name string, args ...string) error

	// Output executes a command and returns its stdout
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs real commands
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// lsblkOutput is the JSON printed by `lsblk -J -l -o path,uuid,mountpoint`
type lsblkOutput struct {
	BlockDevices []struct {
		Path       string  `json:"path"`
		UUID       *string `json:"uuid"`
		Mountpoint *string `json:"mountpoint"`
	} `json:"blockdevices"`
}

// PmountPlatform uses pmount/pumount and lsblk, so an unprivileged user in
// the plugdev group can run the daemon. Volumes land in /media/<uuid>.
type PmountPlatform struct {
	runner CommandRunner
	logger *slog.Logger
}

// NewPmountPlatform creates a helper-based platform
func NewPmountPlatform(runner CommandRunner, logger *slog.Logger) *PmountPlatform {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PmountPlatform{runner: runner, logger: logger}
}

// Query lists block devices via lsblk.
// -l flattens partitions so they are not nested under their disk.
func (p *PmountPlatform) Query(ctx context.Context) ([]BlockDevice, error) {
	out, err := p.runner.Output(ctx, "lsblk", "-J", "-l", "-o", "path,uuid,mountpoint")
	if err != nil {
		return nil, err
	}
	return parseLsblk(out)
}

func parseLsblk(out []byte) ([]BlockDevice, error) {
	var parsed lsblkOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parse lsblk output: %w", err)
	}

	devices := make([]BlockDevice, 0, len(parsed.BlockDevices))
	for _, bd := range parsed.BlockDevices {
		dev := BlockDevice{Path: bd.Path}
		if bd.UUID != nil {
			dev.UUID = *bd.UUID
		}
		if bd.Mountpoint != nil {
			dev.Mountpoint = *bd.Mountpoint
		}
		devices = append(devices, dev)
	}
	return devices, nil
}

// Mount runs `pmount <dev> <uuid>`
func (p *PmountPlatform) Mount(ctx context.Context, vol domain.TargetVolume) error {
	p.logger.Debug("running pmount", "dev", vol.DevNode, "label", vol.UUID)
	return p.runner.Run(ctx, "pmount", vol.DevNode, vol.UUID)
}

// Unmount runs `pumount <dev>`; a failure means the device is still in use
func (p *PmountPlatform) Unmount(ctx context.Context, vol domain.TargetVolume, _ string) error {
	p.logger.Debug("running pumount", "dev", vol.DevNode)
	if err := p.runner.Run(ctx, "pumount", vol.DevNode); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrDeviceBusy, err)
	}
	return nil
}
