// Package domain holds the tracking broadcaster's core types: tracking
// events, the client control protocol, delivery reports, and sentinel errors.
// It has no dependencies on transport or storage.
package domain
