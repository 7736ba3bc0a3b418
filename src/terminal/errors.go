package terminal

import "errors"

// Sentinel errors surfaced by the terminal core. Handlers translate these
// into HTTP status codes / WebSocket close codes; see src/handler and
// src/bridge.
var (
	// ErrSpawnFailed is returned when PTY allocation or the child exec fails.
	ErrSpawnFailed = errors.New("terminal: failed to spawn shell")

	// ErrNotActive is returned by write/read/resize on a Terminal that has
	// not started, has already closed, or whose pump has exited.
	ErrNotActive = errors.New("terminal: session is not active")

	// ErrBadArgument is returned for out-of-range resize dimensions or a
	// malformed session id / path.
	ErrBadArgument = errors.New("terminal: bad argument")

	// ErrSessionNotFound is returned by registry lookups for an unknown id.
	ErrSessionNotFound = errors.New("terminal: session not found")

	// ErrDuplicateSession is returned when create() is called with an id
	// that is already present; the registry returns the existing session
	// instead of failing, but callers that want strict creation can check
	// for this.
	ErrDuplicateSession = errors.New("terminal: session already exists")
)
