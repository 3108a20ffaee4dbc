package session

import "errors"

// ErrUnavailable means a session could not be loaded from the shared cache.
// Nothing is registered, so a later Open tries again.
var ErrUnavailable = errors.New("session store unavailable")
