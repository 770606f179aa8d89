package session

import "errors"

// ErrConnectionTimeout is returned (via the connect-result callback) when
// READY is not reached within the identification deadline (spec.md §4.3).
var ErrConnectionTimeout = errors.New("session: connection timeout")

// ErrHeartbeatTimeout terminates a session that stopped answering
// firmware-version heartbeats (spec.md §4.3).
var ErrHeartbeatTimeout = errors.New("session: heartbeat timeout")

// ErrLinkClosed is the reason recorded when the underlying Link failed
// or was closed out from under the session.
var ErrLinkClosed = errors.New("session: link closed")

// ErrNotReady is returned by ExecuteAction when the session has not yet
// reached READY.
var ErrNotReady = errors.New("session: not ready")

// ErrAlreadyBlinking is returned by StartBlink when a blink interval is
// already running (spec.md §4.3: "starting while already blinking is a
// no-op with a warning").
var ErrAlreadyBlinking = errors.New("session: already blinking")
