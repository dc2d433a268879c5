package session

import "errors"

// ErrSessionClosed is returned when an operation is attempted on a
// completed session.
var ErrSessionClosed = errors.New("session is closed")

// ErrProviderUnavailable is returned when the realtime provider channel
// cannot be established. The persisted session record remains so a retry
// can reuse it.
var ErrProviderUnavailable = errors.New("translation provider unavailable")

// ErrSessionNotFound is returned when an operation references a session id
// with no persisted record.
var ErrSessionNotFound = errors.New("session not found")
