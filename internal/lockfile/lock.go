// Package lockfile provides advisory file locking used to serialise access
// to the reference storage engine's log directory across processes.
package lockfile

import "errors"

// ErrLockBusy is returned when a non-blocking lock cannot be acquired
// because another process holds a conflicting lock.
var ErrLockBusy = errors.New("lock busy: held by another process")
