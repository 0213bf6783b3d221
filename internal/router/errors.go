package router

import "errors"

// Router error types
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNoDeliverer       = errors.New("router has no deliverer")
)
