package common

import "errors"

// Sentinel errors shared across the client packages. Callers match these with
// errors.Is after unwrapping.
var (
	// ErrInvalidPlatform is returned when the running OS/architecture is not
	// one the tools service ships binaries for.
	ErrInvalidPlatform = errors.New("invalid platform")

	// ErrServerPathMissing is returned when no service executable could be
	// resolved for the current platform.
	ErrServerPathMissing = errors.New("invalid service file path")

	// ErrNoActiveSession is returned when a request or notification is
	// forwarded before a transport channel has been assigned.
	ErrNoActiveSession = errors.New("no active session")

	// ErrSessionTerminated is returned after the channel has crashed or
	// closed; the session is never restarted.
	ErrSessionTerminated = errors.New("session terminated")

	// ErrIncompatibleService is returned when the compatibility handshake
	// failed and the session has been flagged incompatible.
	ErrIncompatibleService = errors.New("service not compatible")
)
