package tracking

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/nabekah/farmkonnect-tracking/internal/domain"
)

// Broadcaster is the producer-facing surface of the hub.
type Broadcaster interface {
	Broadcast(event domain.TrackingEvent) domain.DeliveryReport
}

// simStage is one canned step of the demo lifecycle.
type simStage struct {
	eventType domain.EventType
	location  string
	actor     string
	notes     string
}

var simStages = []simStage{
	{domain.EventProduction, "Green Valley Farm", "farm-operator", "Harvest completed and batch sealed"},
	{domain.EventProcessing, "Riverside Processing Facility", "processing-technician", "Washed, sorted and packed"},
	{domain.EventTransport, "Cold Chain Truck 12", "logistics-driver", "In transit to distribution hub"},
	{domain.EventCertification, "Regional Certification Office", "certification-inspector", "Organic certification verified"},
}

// Simulator emits the canonical four-stage event sequence for a product and
// batch with artificial inter-event delay. Testing and demo aid only; not
// part of the production contract.
type Simulator struct {
	broadcaster Broadcaster
	clock       clockwork.Clock
	delay       time.Duration
}

// NewSimulator creates a simulator that waits delay between stages.
func NewSimulator(broadcaster Broadcaster, clock clockwork.Clock, delay time.Duration) *Simulator {
	return &Simulator{broadcaster: broadcaster, clock: clock, delay: delay}
}

// SimulateSequence broadcasts production, processing, transport and
// certification events for the given product and batch. Timestamps follow
// the logical stage order even though wire delivery order is best-effort.
// Returns the delivery report for each stage emitted before ctx was done.
func (s *Simulator) SimulateSequence(ctx context.Context, productID, batchNumber string) []domain.DeliveryReport {
	reports := make([]domain.DeliveryReport, 0, len(simStages))

	for i, stage := range simStages {
		if i > 0 {
			select {
			case <-ctx.Done():
				return reports
			case <-s.clock.After(s.delay):
			}
		}

		event := domain.TrackingEvent{
			ID:           uuid.NewString(),
			ProductID:    productID,
			BatchNumber:  batchNumber,
			EventType:    stage.eventType,
			Location:     stage.location,
			Actor:        stage.actor,
			Timestamp:    s.clock.Now(),
			Notes:        stage.notes,
			Stakeholders: []string{},
		}
		reports = append(reports, s.broadcaster.Broadcast(event))
	}

	return reports
}
