// Package redis holds the Redis client wrapper and the pub/sub event source
// that feeds externally produced tracking events into the broadcaster.
package redis
