package config

import "time"

// Timeouts used by the long-running commands.
const (
	RedisDialTimeout = 5 * time.Second  // initial PING before subscribing or publishing
	ShutdownTimeout  = 10 * time.Second // draining the API server and event sinks
)

// MaxRoyaltyBps is 100%.
const MaxRoyaltyBps = 10_000
