// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package locks

import (
	"context"
	"sync"
	"time"
)

// localLockWait bounds how long Lock blocks on a held lock, mirroring the
// redis locker's wait deadline.
const localLockWait = 5 * time.Second

type localLock struct {
	ch   chan struct{}
	refs int
}

// LocalLocker implements Locker with in process mutexes.  Entries are
// reference counted and removed once no holder or waiter remains.
type LocalLocker struct {
	mtx   sync.Mutex
	locks map[string]*localLock
}

// NewLocalLocker returns an in process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*localLock)}
}

func (l *LocalLocker) ref(name string) *localLock {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	entry, ok := l.locks[name]
	if !ok {
		entry = &localLock{ch: make(chan struct{}, 1)}
		l.locks[name] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) unref(name string, entry *localLock) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, name)
	}
}

// Lock acquires the named lock, failing once the context is done or the
// wait deadline passes.
func (l *LocalLocker) Lock(ctx context.Context, name string) (UnlockFunc, error) {
	entry := l.ref(name)
	timer := time.NewTimer(localLockWait)
	defer timer.Stop()
	select {
	case entry.ch <- struct{}{}:
		return func() {
			<-entry.ch
			l.unref(name, entry)
		}, nil
	case <-timer.C:
		l.unref(name, entry)
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		l.unref(name, entry)
		return nil, ctx.Err()
	}
}
