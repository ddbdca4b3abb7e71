// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package ratelimit implements fixed window request counting, keyed by an
// arbitrary string such as "player:17:vote".  Counters live in redis when
// one is configured so limits hold across processes, otherwise in memory.
package ratelimit

import (
	"context"
	"time"
)

// Limiter answers whether the request identified by key may proceed.
type Limiter interface {
	// Allow counts one request against the key's fixed window and reports
	// whether it stays within limit.  When denied, retryAfter is the time
	// remaining until the window resets.
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}
