package rate

import "errors"

// ErrRedisUnavailable wraps every Redis failure surfaced by [Redis].
var ErrRedisUnavailable = errors.New("rate limiter redis unavailable")
