// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package locks provides named mutual exclusion for the game's critical
// sections.  Names are well known strings such as "queue:prompts" or
// "phraseset:17".  The redis backed locker coordinates across processes;
// the local locker covers single process deployments without redis.
package locks

import (
	"context"
	"errors"
)

// ErrAcquireTimeout is returned when a lock could not be acquired before
// the locker's wait deadline.
var ErrAcquireTimeout = errors.New("lock acquire timed out")

// UnlockFunc releases a held lock.  It must be called exactly once.
type UnlockFunc func()

// Locker serializes access to a named resource.
type Locker interface {
	// Lock blocks until the named lock is held, the context is done, or
	// the locker's wait deadline passes.
	Lock(ctx context.Context, name string) (UnlockFunc, error)
}
