// Package lock provides a non-blocking, cross-process advisory lock so only
// one generation runs per repository at a time.
package lock

import "errors"

// ErrLocked indicates the lock is already held (e.g. another evolog generate).
var ErrLocked = errors.New("generation already in progress")

const lockFilename = "lock"
