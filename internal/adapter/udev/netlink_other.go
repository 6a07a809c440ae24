//go:build !linux

package udev

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/mmcdole/hddsync/internal/domain"
)

// Monitor is unavailable off Linux; Subscribe always fails
type Monitor struct{}

func NewMonitor(string, *slog.Logger) *Monitor {
	return &Monitor{}
}

func (*Monitor) Subscribe(context.Context) (<-chan domain.DeviceEvent, error) {
	return nil, fmt.Errorf("%w: uevents are not supported on %s", domain.ErrMonitorUnavailable, runtime.GOOS)
}
