package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrAuthFailed indicates the media server rejected or could not process the login
	ErrAuthFailed = errors.New("authentication failed")

	// ErrFetchFailed indicates the playlist could not be retrieved
	ErrFetchFailed = errors.New("playlist fetch failed")

	// ErrServerOffline indicates the media server is unreachable
	ErrServerOffline = errors.New("media server is unreachable")

	// ErrMountFailed indicates the target volume could not be mounted
	ErrMountFailed = errors.New("mount failed")

	// ErrDeviceBusy indicates the volume still has open references and cannot be detached
	ErrDeviceBusy = errors.New("device is busy")

	// ErrStateFailed indicates the sync record on the volume could not be read or written
	ErrStateFailed = errors.New("sync record unavailable")

	// ErrTransferFailed indicates a delete or copy batch did not fully succeed
	ErrTransferFailed = errors.New("transfer failed")

	// ErrMonitorUnavailable indicates the device event channel could not be opened
	ErrMonitorUnavailable = errors.New("device monitor unavailable")

	// ErrNotifyFailed indicates the completion notification could not be sent
	ErrNotifyFailed = errors.New("notification failed")

	// ErrInvalidConfig indicates the configuration failed validation
	ErrInvalidConfig = errors.New("invalid configuration")
)
