// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package locks

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// releaseScript deletes the lock key only while it still holds our token,
// so a lock that expired and was re-acquired elsewhere is never released
// by the previous holder.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on a shared redis instance.  Held locks
// expire after ttl as crash protection, so critical sections must finish
// well inside it.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisLocker returns a locker on the given client.  ttl bounds how
// long a crashed holder can wedge a lock, wait bounds how long Lock blocks
// before giving up.
func NewRedisLocker(client *redis.Client, ttl time.Duration, wait time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

// Lock acquires the named lock, polling until the wait deadline.
func (l *RedisLocker) Lock(ctx context.Context, name string) (UnlockFunc, error) {
	key := "lock:" + name
	token := uuid.New().String()
	deadline := time.Now().Add(l.wait)

	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrAcquireTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	release := func() {
		// The request context may already be gone by release time.
		rctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{key}, token).Err(); err != nil &&
			err != redis.Nil {
			log.Warnf("Failed to release lock %s: %v", name, err)
		}
	}
	return release, nil
}
