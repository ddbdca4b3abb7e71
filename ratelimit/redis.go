// Copyright (c) 2020 The Quipflip developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// countScript increments the window counter and arms its expiry in one
// atomic step, so a crash between the two can never leave an immortal key.
// Returns {allowed, pttl_ms}.
var countScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
if count > tonumber(ARGV[2]) then
	return {0, redis.call("PTTL", KEYS[1])}
end
return {1, 0}
`)

// RedisLimiter implements Limiter on a shared redis instance.
type RedisLimiter struct {
	client *redis.Client
}

// NewRedisLimiter returns a limiter on the given client.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow counts one request against the key's window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, time.Duration, error) {
	res, err := countScript.Run(ctx, l.client, []string{"ratelimit:" + key},
		window.Milliseconds(), limit).Result()
	if err != nil {
		return false, 0, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		log.Warnf("Unexpected rate limit script reply %T", res)
		return true, 0, nil
	}
	allowed, _ := vals[0].(int64)
	if allowed == 1 {
		return true, 0, nil
	}
	pttl, _ := vals[1].(int64)
	retryAfter := time.Duration(pttl) * time.Millisecond
	if retryAfter <= 0 {
		retryAfter = window
	}
	return false, retryAfter, nil
}
