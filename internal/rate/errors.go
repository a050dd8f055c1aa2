package rate

import "errors"

var (
	// ErrRateLimited means the login budget for the window is spent.
	ErrRateLimited = errors.New("too many login attempts")
	// ErrRedisUnavailable wraps transport failures from the counter store.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
