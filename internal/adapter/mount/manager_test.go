package mount

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mmcdole/hddsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePlatform keeps a tiny mount table in memory
type fakePlatform struct {
	mu              sync.Mutex
	mounted         map[string]string // uuid -> mountpoint
	mountTarget     string
	mountErr        error
	queryFailures   int
	queryCalls      int
	unmountFailures int
	mountCalls      int
	unmountCalls    int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		mounted:     make(map[string]string),
		mountTarget: "/media/1234-ABCD",
	}
}

func (f *fakePlatform) Query(context.Context) ([]BlockDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.queryCalls <= f.queryFailures {
		return nil, errors.New("lsblk: exit status 32")
	}
	devices := []BlockDevice{{Path: "/dev/sda1", UUID: "root-uuid", Mountpoint: "/"}}
	for uuid, mp := range f.mounted {
		devices = append(devices, BlockDevice{Path: "/dev/sdb1", UUID: uuid, Mountpoint: mp})
	}
	return devices, nil
}

func (f *fakePlatform) Mount(_ context.Context, vol domain.TargetVolume) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mountCalls++
	if f.mountErr != nil {
		return f.mountErr
	}
	f.mounted[vol.UUID] = f.mountTarget
	return nil
}

func (f *fakePlatform) Unmount(_ context.Context, vol domain.TargetVolume, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unmountCalls++
	if f.unmountCalls <= f.unmountFailures {
		return domain.ErrDeviceBusy
	}
	delete(f.mounted, vol.UUID)
	return nil
}

func (f *fakePlatform) calls() (mounts, unmounts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mountCalls, f.unmountCalls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testVolume = domain.TargetVolume{DevNode: "/dev/sdb1", UUID: "1234-ABCD", FSType: "vfat"}

func TestMount_IsIdempotent(t *testing.T) {
	p := newFakePlatform()
	m := NewManager(p, testLogger())
	ctx := context.Background()

	first, err := m.Mount(ctx, testVolume)
	require.NoError(t, err)
	second, err := m.Mount(ctx, testVolume)
	require.NoError(t, err)

	assert.Equal(t, "/media/1234-ABCD", first)
	assert.Equal(t, first, second)

	mounts, _ := p.calls()
	assert.Equal(t, 1, mounts, "second mount must short-circuit")
}

func TestMount_AlreadyMountedElsewhere(t *testing.T) {
	p := newFakePlatform()
	p.mounted["1234-ABCD"] = "/run/media/user/DISK"
	m := NewManager(p, testLogger())

	mp, err := m.Mount(context.Background(), testVolume)
	require.NoError(t, err)
	assert.Equal(t, "/run/media/user/DISK", mp)

	mounts, _ := p.calls()
	assert.Zero(t, mounts)
}

func TestMount_FailsFast(t *testing.T) {
	p := newFakePlatform()
	p.mountErr = errors.New("wrong fs type")
	m := NewManager(p, testLogger())

	_, err := m.Mount(context.Background(), testVolume)
	require.ErrorIs(t, err, domain.ErrMountFailed)
	assert.Contains(t, err.Error(), "wrong fs type")

	mounts, _ := p.calls()
	assert.Equal(t, 1, mounts)
}

func TestMount_NotVisibleAfterMount(t *testing.T) {
	p := newFakePlatform()
	p.mountTarget = "" // mount "succeeds" but the table never shows it
	m := NewManager(p, testLogger())

	_, err := m.Mount(context.Background(), testVolume)
	require.ErrorIs(t, err, domain.ErrMountFailed)
}

func TestUnmount_NotMountedIsNoop(t *testing.T) {
	p := newFakePlatform()
	m := NewManager(p, testLogger())

	require.NoError(t, m.Unmount(context.Background(), testVolume))

	_, unmounts := p.calls()
	assert.Zero(t, unmounts)
}

func TestUnmount_RetriesUntilNotBusy(t *testing.T) {
	const failures = 3

	p := newFakePlatform()
	p.mounted["1234-ABCD"] = "/media/1234-ABCD"
	p.unmountFailures = failures

	clock := clockwork.NewFakeClock()
	m := NewManager(p, testLogger(), WithClock(clock), WithRetryInterval(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.Unmount(ctx, testVolume)
	}()

	for i := 1; i <= failures; i++ {
		// Unmount is parked on the retry timer after attempt i
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		_, unmounts := p.calls()
		assert.Equal(t, i, unmounts)
		clock.Advance(time.Minute)
	}

	require.NoError(t, <-done)
	_, unmounts := p.calls()
	assert.Equal(t, failures+1, unmounts)

	mp, err := m.Mountpoint(ctx, testVolume.UUID)
	require.NoError(t, err)
	assert.Empty(t, mp)
}

func TestUnmount_RetriesWhenMountTableUnavailable(t *testing.T) {
	const failures = 2

	p := newFakePlatform()
	p.mounted["1234-ABCD"] = "/media/1234-ABCD"
	p.queryFailures = failures

	clock := clockwork.NewFakeClock()
	m := NewManager(p, testLogger(), WithClock(clock), WithRetryInterval(time.Minute))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.Unmount(ctx, testVolume)
	}()

	for range failures {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		_, unmounts := p.calls()
		assert.Zero(t, unmounts)
		clock.Advance(time.Minute)
	}

	require.NoError(t, <-done)
	_, unmounts := p.calls()
	assert.Equal(t, 1, unmounts)
	assert.Empty(t, p.mounted)
}

func TestUnmount_CancelledWhileWaiting(t *testing.T) {
	p := newFakePlatform()
	p.mounted["1234-ABCD"] = "/media/1234-ABCD"
	p.unmountFailures = 1000

	clock := clockwork.NewFakeClock()
	m := NewManager(p, testLogger(), WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- m.Unmount(ctx, testVolume)
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)
}

func TestMountpoint_MatchesUUIDCaseInsensitively(t *testing.T) {
	p := newFakePlatform()
	p.mounted["abcd-1234"] = "/media/x"
	m := NewManager(p, testLogger())

	mp, err := m.Mountpoint(context.Background(), "ABCD-1234")
	require.NoError(t, err)
	assert.Equal(t, "/media/x", mp)
}
