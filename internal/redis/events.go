package redis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nabekah/farmkonnect-tracking/internal/domain"
	"github.com/nabekah/farmkonnect-tracking/internal/metrics"
	"github.com/nabekah/farmkonnect-tracking/internal/tracking"
)

// EventsChannel is the pub/sub channel the farm/marketplace business logic
// publishes tracking events on.
const EventsChannel = "tracking:events"

const reconnectDelay = 2 * time.Second

// EventSource consumes tracking events from Redis Pub/Sub and feeds them to
// the broadcaster. Ingest plumbing only: fan-out stays single-process.
type EventSource struct {
	rdb         *goredis.Client
	broadcaster tracking.Broadcaster
	clock       clockwork.Clock
}

// NewEventSource creates an event source feeding the given broadcaster.
func NewEventSource(client *Client, broadcaster tracking.Broadcaster, clock clockwork.Clock) *EventSource {
	return &EventSource{rdb: client.Underlying(), broadcaster: broadcaster, clock: clock}
}

// Run subscribes to the events channel and broadcasts each decoded event
// until ctx is done. The subscription is re-established after a drop.
func (es *EventSource) Run(ctx context.Context) {
	for {
		es.consume(ctx)

		select {
		case <-ctx.Done():
			metrics.PubSubSubscriptionActive.Set(0)
			return
		case <-es.clock.After(reconnectDelay):
			metrics.PubSubReconnectionsTotal.Inc()
			slog.Warn("Event subscription dropped, reconnecting", "channel", EventsChannel)
		}
	}
}

func (es *EventSource) consume(ctx context.Context) {
	sub := es.rdb.Subscribe(ctx, EventsChannel)
	defer func() { _ = sub.Close() }()

	metrics.PubSubSubscriptionActive.Set(1)
	slog.Info("Event source subscribed", "channel", EventsChannel)

	msgCh := sub.Channel()
	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				metrics.PubSubSubscriptionActive.Set(0)
				return
			}
			received := es.clock.Now()
			metrics.PubSubMessagesReceived.WithLabelValues(EventsChannel).Inc()

			var event domain.TrackingEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Warn("Skipping malformed tracking event", "channel", EventsChannel, "error", err)
				continue
			}
			if !event.EventType.Valid() {
				slog.Warn("Skipping tracking event with unknown type",
					"event_id", event.ID, "event_type", string(event.EventType))
				continue
			}

			report := es.broadcaster.Broadcast(event)
			metrics.PubSubMessageLatency.Observe(es.clock.Since(received).Seconds())
			slog.Debug("Tracking event broadcast",
				"event_id", event.ID,
				"product_id", event.ProductID,
				"batch_number", event.BatchNumber,
				"targeted", report.Targeted,
				"reached", report.ConnectionsReached,
				"dropped", report.Dropped,
			)
		case <-ctx.Done():
			return
		}
	}
}
