package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabekah/farmkonnect-tracking/internal/domain"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []domain.TrackingEvent
}

func (r *recordingBroadcaster) Broadcast(event domain.TrackingEvent) domain.DeliveryReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return domain.DeliveryReport{Targeted: 1, ConnectionsReached: 1}
}

func (r *recordingBroadcaster) recorded() []domain.TrackingEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.TrackingEvent(nil), r.events...)
}

func TestSimulator_EmitsCanonicalSequence(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	recorder := &recordingBroadcaster{}
	simulator := NewSimulator(recorder, fakeClock, 5*time.Second)

	done := make(chan []domain.DeliveryReport, 1)
	go func() {
		done <- simulator.SimulateSequence(context.Background(), "P1", "B1")
	}()

	// Three inter-stage delays separate the four stages
	for i := 0; i < 3; i++ {
		fakeClock.BlockUntil(1)
		fakeClock.Advance(5 * time.Second)
	}

	var reports []domain.DeliveryReport
	select {
	case reports = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not finish")
	}
	assert.Len(t, reports, 4)

	events := recorder.recorded()
	require.Len(t, events, 4)

	wantStages := []domain.EventType{
		domain.EventProduction,
		domain.EventProcessing,
		domain.EventTransport,
		domain.EventCertification,
	}
	for i, event := range events {
		assert.Equal(t, wantStages[i], event.EventType)
		assert.Equal(t, "P1", event.ProductID)
		assert.Equal(t, "B1", event.BatchNumber)
		assert.NotEmpty(t, event.ID)
		assert.NotEmpty(t, event.Location)
		assert.Empty(t, event.Stakeholders)
	}

	// Timestamps follow the logical stage order
	for i := 1; i < len(events); i++ {
		assert.True(t, events[i].Timestamp.After(events[i-1].Timestamp),
			"stage %d timestamp must come after stage %d", i, i-1)
	}
}

func TestSimulator_ContextCancelStopsSequence(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	recorder := &recordingBroadcaster{}
	simulator := NewSimulator(recorder, fakeClock, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan []domain.DeliveryReport, 1)
	go func() {
		done <- simulator.SimulateSequence(ctx, "P1", "B1")
	}()

	// Wait for the simulator to block on the first inter-stage delay, then cancel
	fakeClock.BlockUntil(1)
	cancel()

	var reports []domain.DeliveryReport
	select {
	case reports = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not stop on cancellation")
	}

	assert.Len(t, reports, 1, "only the first stage should have been emitted")
	assert.Len(t, recorder.recorded(), 1)
}
