// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ratelimit

import (
	"context"
	"sync"
	"time"
)

type localWindow struct {
	count   int64
	resetAt time.Time
}

// LocalLimiter implements Limiter with in process counters.
type LocalLimiter struct {
	sync.Mutex
	windows map[string]*localWindow
}

// NewLocalLimiter returns an in process limiter and starts a janitor that
// drops stale windows.
func NewLocalLimiter() *LocalLimiter {
	limiter := &LocalLimiter{
		windows: make(map[string]*localWindow),
	}

	go func() {
		for now := range time.Tick(time.Minute) {
			limiter.Lock()
			for key, w := range limiter.windows {
				if now.After(w.resetAt) {
					delete(limiter.windows, key)
				}
			}
			limiter.Unlock()
		}
	}()

	return limiter
}

// Allow counts one request against the key's window.
func (l *LocalLimiter) Allow(_ context.Context, key string, limit int64, window time.Duration) (bool, time.Duration, error) {
	now := time.Now()

	l.Lock()
	defer l.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = &localWindow{count: 1, resetAt: now.Add(window)}
		return true, 0, nil
	}
	w.count++
	if w.count > limit {
		return false, w.resetAt.Sub(now), nil
	}
	return true, 0, nil
}
