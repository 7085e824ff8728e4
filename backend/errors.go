package backend

import "errors"

// ErrNoBackend is returned when no backend is registered under the
// requested name.
var ErrNoBackend = errors.New("accel/backend: no backend registered")
