//go:build linux

package udev

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/pilebones/go-udev/netlink"
)

// readTimeout bounds each socket read so cancellation is noticed between events
const readTimeout = 500 * time.Millisecond

// conn is the read side of a uevent socket; *netlink.UEventConn satisfies it.
// ReadMsg returns EAGAIN when readTimeout passes without a message.
type conn interface {
	ReadMsg() ([]byte, error)
	Close() error
}

// Monitor watches block device hotplug events for one filesystem UUID.
// Events are not buffered across restarts: attaches that happen while the
// process is down are never seen.
type Monitor struct {
	filter Filter
	logger *slog.Logger
	open   func() (conn, error)
}

// NewMonitor creates a monitor on the udev netlink group
func NewMonitor(targetUUID string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		filter: Filter{UUID: targetUUID},
		logger: logger,
		open: func() (conn, error) {
			return openNetlink(netlink.UdevEvent)
		},
	}
}

// Subscribe opens the event socket and streams matching events until ctx is done.
// Failing to open the socket is returned immediately and is meant to be fatal.
func (m *Monitor) Subscribe(ctx context.Context) (<-chan domain.DeviceEvent, error) {
	c, err := m.open()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrMonitorUnavailable, err)
	}

	events := make(chan domain.DeviceEvent)
	go func() {
		defer close(events)
		defer c.Close()
		m.readLoop(ctx, c, events)
	}()

	return events, nil
}

func (m *Monitor) readLoop(ctx context.Context, c conn, events chan<- domain.DeviceEvent) {
	for ctx.Err() == nil {
		msg, err := c.ReadMsg()
		if err != nil {
			switch {
			case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
				continue
			case errors.Is(err, syscall.ENOBUFS):
				// Receive queue overran; some events were dropped
				m.logger.Warn("uevent socket overrun, events dropped")
				continue
			}
			if ctx.Err() == nil {
				m.logger.Error("uevent read failed", "error", err)
			}
			return
		}

		ue, err := ParseMessage(msg)
		if err != nil {
			m.logger.Debug("ignoring uevent", "error", err)
			continue
		}

		ev := EventFromUEvent(ue)
		if !m.filter.Match(ev) {
			continue
		}
		m.logger.Debug("matched uevent", "dev", ev.DevNode, "uuid", ev.FSUUID)

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
