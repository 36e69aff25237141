// Package lock provides exclusive advisory locks on open files.
//
// The locks coordinate processes sharing one journal file. They are held by
// the open file description, so closing the file also releases the lock.
package lock

import "errors"

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("file already locked by another process")
