package ratelimit

import (
	"github.com/redis/go-redis/v9"
)

// slidingWindowScript drops expired tokens, then adds one only when the
// window still has room. Scores and the window are in milliseconds.
//
// KEYS[1] window key
// ARGV[1] limit, ARGV[2] window, ARGV[3] now, ARGV[4] unique member
// Returns {allowed, remaining, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return {1, limit - count - 1, 0}
end

local retry = window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	retry = window - (now - tonumber(oldest[2]))
end
if retry < 0 then
	retry = 0
end
return {0, 0, retry}
`)

// dailyCounterScript increments a calendar-day counter and makes sure it
// carries an expiry, so a counter can never outlive its day.
//
// KEYS[1] counter key
// ARGV[1] seconds until the next reference-zone midnight
// Returns {count, ttl_seconds}.
var dailyCounterScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
local ttl = redis.call('TTL', KEYS[1])
if count == 1 or ttl < 0 then
	redis.call('EXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)
