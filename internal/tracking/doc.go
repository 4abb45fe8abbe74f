// Package tracking implements the real-time tracking event broadcaster: a
// connection registry, a subscription index with reverse product/batch
// indices, connection-to-stakeholder bindings, and targeted event fan-out.
// All shared state is owned by a single actor goroutine (the Hub) that
// serializes mutation through a command channel.
package tracking
