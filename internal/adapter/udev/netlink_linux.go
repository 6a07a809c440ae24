//go:build linux

package udev

import (
	"fmt"

	"github.com/pilebones/go-udev/netlink"
	"golang.org/x/sys/unix"
)

// openNetlink connects a uevent socket to the given multicast group with a
// receive timeout, so a blocked read returns periodically.
func openNetlink(mode netlink.Mode) (conn, error) {
	c := &netlink.UEventConn{}
	if err := c.Connect(mode); err != nil {
		return nil, fmt.Errorf("netlink connect: %w", err)
	}

	tv := unix.NsecToTimeval(readTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(c.Fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		c.Close()
		return nil, fmt.Errorf("netlink receive timeout: %w", err)
	}
	return c, nil
}
