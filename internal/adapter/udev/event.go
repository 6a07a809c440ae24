//go:build linux

package udev

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/pilebones/go-udev/netlink"
)

var errMalformed = errors.New("malformed uevent")

// ParseMessage decodes one netlink datagram: either a plain kernel uevent
// ("action@devpath\0KEY=VALUE\0...") or one re-broadcast by udevd behind its
// libudev header.
func ParseMessage(buf []byte) (*netlink.UEvent, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty message", errMalformed)
	}
	ue, err := netlink.ParseUEvent(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformed, err)
	}
	return ue, nil
}

// EventFromUEvent maps a parsed uevent onto a DeviceEvent
func EventFromUEvent(ue *netlink.UEvent) domain.DeviceEvent {
	ev := domain.DeviceEvent{
		Subsystem: ue.Env["SUBSYSTEM"],
		FSUUID:    ue.Env["ID_FS_UUID"],
		FSType:    ue.Env["ID_FS_TYPE"],
		DevNode:   ue.Env["DEVNAME"],
	}
	switch strings.ToLower(string(ue.Action)) {
	case "add":
		ev.Action = domain.DeviceActionAdd
	case "remove":
		ev.Action = domain.DeviceActionRemove
	default:
		ev.Action = domain.DeviceActionOther
	}
	// Kernel events carry the bare name ("sdb1")
	if ev.DevNode != "" && !strings.HasPrefix(ev.DevNode, "/") {
		ev.DevNode = "/dev/" + ev.DevNode
	}
	return ev
}

// Filter selects the attach events of one filesystem
type Filter struct {
	UUID string
}

// Match reports whether the event is an add of the target block device
func (f Filter) Match(ev domain.DeviceEvent) bool {
	return ev.Subsystem == "block" &&
		ev.Action == domain.DeviceActionAdd &&
		ev.FSUUID != "" &&
		strings.EqualFold(ev.FSUUID, f.UUID)
}
