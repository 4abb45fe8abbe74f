package domain

import "errors"

var (
	// ErrAlreadyBound is returned when a connection that already declared a
	// stakeholder identity tries to declare a different one. The client has
	// to reconnect to change identity.
	ErrAlreadyBound = errors.New("connection already bound to a different stakeholder")

	// ErrUnknownMessageType is returned by ParseControlMessage for a
	// well-formed message whose type is not part of the protocol.
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrHubStopped is returned for commands issued after the hub shut down.
	ErrHubStopped = errors.New("hub stopped")
)
