package staffchat

import "errors"

// Session-level error taxonomy.
//
// Only ErrIdentityMissing and a persistent ErrDirectoryUnavailable are meant
// to reach the UI as error state. Transport drops surface through the
// connectivity flag instead of an error, and malformed inbound events are
// repaired with defaults and logged. Nothing here is fatal to the process.
var (
	// ErrIdentityMissing means no local identity was available at
	// initialization. Terminal for the session; re-authentication is the
	// caller's problem.
	ErrIdentityMissing = errors.New("staffchat: local identity missing")

	// ErrDirectoryUnavailable means the directory service was unreachable or
	// returned garbage. The cache falls back to an empty roster; re-Load
	// retries.
	ErrDirectoryUnavailable = errors.New("staffchat: directory unavailable")

	// ErrNotConnected is returned by outbound emits while the transport is
	// down. Recoverable; reconnection is automatic and bounded.
	ErrNotConnected = errors.New("staffchat: transport not connected")

	// ErrNoSelection is returned by commands that need an active
	// conversation when none is selected.
	ErrNoSelection = errors.New("staffchat: no conversation selected")

	// ErrNotReady is returned by commands issued before Initialize has
	// completed.
	ErrNotReady = errors.New("staffchat: session not initialized")
)
