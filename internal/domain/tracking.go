package domain

import "time"

// EventType classifies a supply-chain tracking event by lifecycle stage.
type EventType string

const (
	EventProduction    EventType = "production"
	EventProcessing    EventType = "processing"
	EventTransport     EventType = "transport"
	EventDelivery      EventType = "delivery"
	EventCertification EventType = "certification"
)

// Valid reports whether the event type is one of the known lifecycle stages.
func (t EventType) Valid() bool {
	switch t {
	case EventProduction, EventProcessing, EventTransport, EventDelivery, EventCertification:
		return true
	}
	return false
}

// GPSCoordinates is an optional location fix attached to a tracking event.
type GPSCoordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TrackingEvent is a single supply-chain observation produced by external
// business logic. The broadcaster only reads it; it never constructs or
// mutates events beyond wrapping them for the wire.
type TrackingEvent struct {
	ID           string          `json:"id"`
	ProductID    string          `json:"productId"`
	BatchNumber  string          `json:"batchNumber"`
	EventType    EventType       `json:"eventType"`
	Location     string          `json:"location"`
	Actor        string          `json:"actor"`
	Timestamp    time.Time       `json:"timestamp"`
	Temperature  *float64        `json:"temperature,omitempty"`
	Humidity     *float64        `json:"humidity,omitempty"`
	GPS          *GPSCoordinates `json:"gpsCoordinates,omitempty"`
	Notes        string          `json:"notes,omitempty"`
	Stakeholders []string        `json:"stakeholders"`
}

// DeliveryReport summarizes one broadcast: how many stakeholders were
// targeted, how many live connections the event reached, and how many
// deliveries were dropped because a connection was gone or its send
// buffer was full.
type DeliveryReport struct {
	Targeted           int `json:"targeted"`
	ConnectionsReached int `json:"connectionsReached"`
	Dropped            int `json:"dropped"`
}

// Stats is a point-in-time snapshot of the broadcaster's stores.
type Stats struct {
	LiveConnections      int `json:"liveConnections"`
	DistinctStakeholders int `json:"distinctStakeholders"`
	TrackedProducts      int `json:"trackedProducts"`
	TrackedBatches       int `json:"trackedBatches"`
}
