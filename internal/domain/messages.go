package domain

import (
	"encoding/json"
	"fmt"
)

// ControlMessage is the closed set of client-to-server messages. New message
// kinds are added here and handled exhaustively by the dispatch switch.
type ControlMessage interface{ isControlMessage() }

type baseControlMessage struct{}

func (baseControlMessage) isControlMessage() {}

// SubscribeMessage declares a stakeholder's interest in products and batches.
// The first subscribe on a connection also binds the connection to the
// stakeholder identity.
type SubscribeMessage struct {
	baseControlMessage
	StakeholderID string
	ProductIDs    []string
	BatchNumbers  []string
}

// UnsubscribeMessage withdraws interest in products and batches.
type UnsubscribeMessage struct {
	baseControlMessage
	StakeholderID string
	ProductIDs    []string
	BatchNumbers  []string
}

// PingMessage is an application-level keepalive probe.
type PingMessage struct {
	baseControlMessage
}

type controlEnvelope struct {
	Type          string   `json:"type"`
	StakeholderID string   `json:"stakeholderId"`
	ProductIDs    []string `json:"productIds"`
	BatchNumbers  []string `json:"batchNumbers"`
}

// ParseControlMessage decodes a raw client message into a ControlMessage.
// A message with an unrecognized type yields ErrUnknownMessageType so callers
// can log-and-ignore it; any other error means the message is malformed and
// the client should be told so.
func ParseControlMessage(data []byte) (ControlMessage, error) {
	var env controlEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed control message: %w", err)
	}

	switch env.Type {
	case "subscribe":
		if env.StakeholderID == "" {
			return nil, fmt.Errorf("subscribe message missing stakeholderId")
		}
		return SubscribeMessage{
			StakeholderID: env.StakeholderID,
			ProductIDs:    env.ProductIDs,
			BatchNumbers:  env.BatchNumbers,
		}, nil
	case "unsubscribe":
		if env.StakeholderID == "" {
			return nil, fmt.Errorf("unsubscribe message missing stakeholderId")
		}
		return UnsubscribeMessage{
			StakeholderID: env.StakeholderID,
			ProductIDs:    env.ProductIDs,
			BatchNumbers:  env.BatchNumbers,
		}, nil
	case "ping":
		return PingMessage{}, nil
	case "":
		return nil, fmt.Errorf("control message missing type")
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// Server-to-client replies.

// SubscribeAck confirms a subscribe round-trip.
type SubscribeAck struct {
	Type         string   `json:"type"`
	Subscribed   bool     `json:"subscribed"`
	ProductIDs   []string `json:"productIds"`
	BatchNumbers []string `json:"batchNumbers"`
}

// NewSubscribeAck builds the ack for a successful subscribe.
func NewSubscribeAck(productIDs, batchNumbers []string) SubscribeAck {
	return SubscribeAck{Type: "subscribed", Subscribed: true, ProductIDs: productIDs, BatchNumbers: batchNumbers}
}

// UnsubscribeAck confirms an unsubscribe round-trip.
type UnsubscribeAck struct {
	Type         string   `json:"type"`
	ProductIDs   []string `json:"productIds"`
	BatchNumbers []string `json:"batchNumbers"`
}

// NewUnsubscribeAck builds the ack for a successful unsubscribe.
func NewUnsubscribeAck(productIDs, batchNumbers []string) UnsubscribeAck {
	return UnsubscribeAck{Type: "unsubscribed", ProductIDs: productIDs, BatchNumbers: batchNumbers}
}

// PongMessage answers a ping.
type PongMessage struct {
	Type string `json:"type"`
}

// NewPong builds a pong reply.
func NewPong() PongMessage {
	return PongMessage{Type: "pong"}
}

// WarningMessage tells the client the connection is at risk of being
// closed, e.g. for inactivity.
type WarningMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewIdleWarning builds the warning sent one minute before an idle
// connection is disconnected.
func NewIdleWarning() WarningMessage {
	return WarningMessage{Type: "warning", Message: "Connection idle. Will disconnect if no activity within 1 minute."}
}

// ErrorMessage tells the client a message was rejected. The connection
// stays open.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewErrorMessage builds an error reply.
func NewErrorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: "error", Message: msg}
}

// EventEnvelope wraps a tracking event for the wire.
type EventEnvelope struct {
	Type  string        `json:"type"`
	Event TrackingEvent `json:"event"`
}

// NewEventEnvelope wraps an event for delivery to clients.
func NewEventEnvelope(event TrackingEvent) EventEnvelope {
	return EventEnvelope{Type: "product-event", Event: event}
}
