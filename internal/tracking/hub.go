package tracking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/nabekah/farmkonnect-tracking/internal/domain"
	"github.com/nabekah/farmkonnect-tracking/internal/metrics"
)

const (
	commandTimeout = 5 * time.Second  // Actor command timeout
	stopTimeout    = 10 * time.Second // Graceful shutdown timeout
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type registerCmd struct {
	baseHubCmd
	connection   *websocket.Conn
	replyChannel chan uuid.UUID
}

type deregisterCmd struct {
	baseHubCmd
	connectionID uuid.UUID
}

type bindCmd struct {
	baseHubCmd
	connectionID  uuid.UUID
	stakeholderID string
	errorChannel  chan error
}

type subscribeCmd struct {
	baseHubCmd
	connectionID  uuid.UUID
	stakeholderID string
	productIDs    []string
	batchNumbers  []string
	errorChannel  chan error
}

type unsubscribeCmd struct {
	baseHubCmd
	connectionID  uuid.UUID
	stakeholderID string
	productIDs    []string
	batchNumbers  []string
	errorChannel  chan error
}

type broadcastCmd struct {
	baseHubCmd
	event        domain.TrackingEvent
	replyChannel chan domain.DeliveryReport
}

type sendCmd struct {
	baseHubCmd
	connectionID uuid.UUID
	payload      []byte
	replyChannel chan bool
}

type statsCmd struct {
	baseHubCmd
	replyChannel chan domain.Stats
}

type stopCmd struct {
	baseHubCmd
}

// Hub owns the connection registry, the subscription index, and the
// stakeholder bindings, and fans tracking events out to interested
// connections. A single goroutine serializes all mutation, so the four maps
// always change as one atomic unit. Constructed once at startup and passed
// to every connection handler and producer call site.
type Hub struct {
	cmdCh    chan hubCmd
	clock    clockwork.Clock
	conns    map[uuid.UUID]*clientWriter
	index    *subscriptionIndex
	bindings *stakeholderBindings
	done     chan struct{}
}

// NewHub creates the hub and starts its actor goroutine.
func NewHub(clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:    make(chan hubCmd, 256),
		clock:    clock,
		conns:    make(map[uuid.UUID]*clientWriter),
		index:    newSubscriptionIndex(),
		bindings: newStakeholderBindings(),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

// Register adds a connection and returns its fresh connection id.
func (h *Hub) Register(conn *websocket.Conn) (uuid.UUID, error) {
	replyCh := make(chan uuid.UUID, 1)
	if err := h.submit(registerCmd{connection: conn, replyChannel: replyCh}); err != nil {
		return uuid.Nil, err
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case id := <-replyCh:
		return id, nil
	case <-h.done:
		return uuid.Nil, domain.ErrHubStopped
	case <-timer.Chan():
		return uuid.Nil, fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Deregister removes a connection and its binding. Idempotent.
func (h *Hub) Deregister(connectionID uuid.UUID) {
	_ = h.submit(deregisterCmd{connectionID: connectionID})
}

// Bind associates a connection with a stakeholder identity. A connection may
// only bind once; binding to a different stakeholder returns
// domain.ErrAlreadyBound with no state mutated.
func (h *Hub) Bind(connectionID uuid.UUID, stakeholderID string) error {
	errCh := make(chan error, 1)
	if err := h.submit(bindCmd{connectionID: connectionID, stakeholderID: stakeholderID, errorChannel: errCh}); err != nil {
		return err
	}
	return h.awaitError(errCh, "bind")
}

// Subscribe binds the connection to the stakeholder (first declaration wins)
// and unions the given products and batches into its subscription. The bind
// and the index update happen as one atomic actor step.
func (h *Hub) Subscribe(connectionID uuid.UUID, stakeholderID string, productIDs, batchNumbers []string) error {
	errCh := make(chan error, 1)
	cmd := subscribeCmd{
		connectionID:  connectionID,
		stakeholderID: stakeholderID,
		productIDs:    productIDs,
		batchNumbers:  batchNumbers,
		errorChannel:  errCh,
	}
	if err := h.submit(cmd); err != nil {
		return err
	}
	return h.awaitError(errCh, "subscribe")
}

// Unsubscribe removes the given products and batches from the stakeholder's
// subscription. Ids never held are ignored; an empty record is pruned.
func (h *Hub) Unsubscribe(connectionID uuid.UUID, stakeholderID string, productIDs, batchNumbers []string) error {
	errCh := make(chan error, 1)
	cmd := unsubscribeCmd{
		connectionID:  connectionID,
		stakeholderID: stakeholderID,
		productIDs:    productIDs,
		batchNumbers:  batchNumbers,
		errorChannel:  errCh,
	}
	if err := h.submit(cmd); err != nil {
		return err
	}
	return h.awaitError(errCh, "unsubscribe")
}

// Broadcast fans an event out to every connection of every interested
// stakeholder and to the stakeholders the event lists explicitly. Best-effort:
// dead or saturated connections count as dropped, never retried.
func (h *Hub) Broadcast(event domain.TrackingEvent) domain.DeliveryReport {
	replyCh := make(chan domain.DeliveryReport, 1)
	if err := h.submit(broadcastCmd{event: event, replyChannel: replyCh}); err != nil {
		return domain.DeliveryReport{}
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case report := <-replyCh:
		return report
	case <-h.done:
		return domain.DeliveryReport{}
	case <-timer.Chan():
		slog.Warn("Broadcast timed out", "timeout", commandTimeout, "event_id", event.ID)
		return domain.DeliveryReport{}
	}
}

// Send writes a payload to a single connection. Returns false when the
// connection is unknown, closing, or its buffer is full.
func (h *Hub) Send(connectionID uuid.UUID, payload []byte) bool {
	replyCh := make(chan bool, 1)
	if err := h.submit(sendCmd{connectionID: connectionID, payload: payload, replyChannel: replyCh}); err != nil {
		return false
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case delivered := <-replyCh:
		return delivered
	case <-h.done:
		return false
	case <-timer.Chan():
		return false
	}
}

// Stats returns a snapshot of the hub's stores in a single actor round-trip.
func (h *Hub) Stats() domain.Stats {
	replyCh := make(chan domain.Stats, 1)
	if err := h.submit(statsCmd{replyChannel: replyCh}); err != nil {
		return domain.Stats{}
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case stats := <-replyCh:
		return stats
	case <-h.done:
		return domain.Stats{}
	case <-timer.Chan():
		slog.Warn("Stats timed out", "timeout", commandTimeout)
		return domain.Stats{}
	}
}

// Stop shuts down the hub, closing all client connections. Blocks until the
// actor goroutine has exited or the stop timeout is reached.
func (h *Hub) Stop() {
	if err := h.submit(stopCmd{}); err != nil {
		return
	}

	timeout := h.clock.NewTimer(stopTimeout)
	defer timeout.Stop()

	select {
	case <-h.done:
		slog.Info("Hub stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
		metrics.HubStopTimeoutsTotal.Inc()
	}
}

func (h *Hub) submit(cmd hubCmd) error {
	select {
	case h.cmdCh <- cmd:
		return nil
	case <-h.done:
		return domain.ErrHubStopped
	}
}

func (h *Hub) awaitError(errCh chan error, op string) error {
	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-h.done:
		return domain.ErrHubStopped
	case <-timer.Chan():
		return fmt.Errorf("%s command timed out after %v", op, commandTimeout)
	}
}

func (h *Hub) run() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			metrics.HubPanicsTotal.Inc()
			h.closeAllClients("hub panic")
			close(h.done)
		}
	}()

	// Track command channel depth every second
	depthTicker := h.clock.NewTicker(1 * time.Second)
	defer depthTicker.Stop()

	for {
		select {
		case <-depthTicker.Chan():
			depth := len(h.cmdCh)
			metrics.HubCommandChannelDepth.Set(float64(depth))
			if depth > 200 { // 80% of 256
				slog.Warn("Hub command channel near capacity", "depth", depth, "capacity", cap(h.cmdCh))
			}

		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				h.handleRegister(c)
			case deregisterCmd:
				h.handleDeregister(c.connectionID)
			case bindCmd:
				c.errorChannel <- h.bindings.bind(c.connectionID, c.stakeholderID)
			case subscribeCmd:
				c.errorChannel <- h.handleSubscribe(c)
			case unsubscribeCmd:
				c.errorChannel <- h.handleUnsubscribe(c)
			case broadcastCmd:
				c.replyChannel <- h.handleBroadcast(c.event)
			case sendCmd:
				c.replyChannel <- h.handleSend(c.connectionID, c.payload)
			case statsCmd:
				c.replyChannel <- domain.Stats{
					LiveConnections:      len(h.conns),
					DistinctStakeholders: h.index.stakeholderCount(),
					TrackedProducts:      h.index.productCount(),
					TrackedBatches:       h.index.batchCount(),
				}
			case stopCmd:
				h.handleStop()
				close(h.done)
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		}
	}
}

func (h *Hub) handleRegister(c registerCmd) {
	id := uuid.New()
	h.conns[id] = newClientWriter(c.connection, h.clock)
	metrics.HubLiveConnections.Set(float64(len(h.conns)))
	slog.Debug("Connection registered", "connection_id", id.String(), "total_connections", len(h.conns))
	c.replyChannel <- id
}

func (h *Hub) handleDeregister(connectionID uuid.UUID) {
	cw, exists := h.conns[connectionID]
	if !exists {
		return
	}

	cw.stop()
	delete(h.conns, connectionID)
	h.bindings.unbind(connectionID)

	metrics.HubLiveConnections.Set(float64(len(h.conns)))
	slog.Debug("Connection deregistered", "connection_id", connectionID.String(), "remaining_connections", len(h.conns))
}

func (h *Hub) handleSubscribe(c subscribeCmd) error {
	if err := h.bindings.bind(c.connectionID, c.stakeholderID); err != nil {
		return err
	}
	h.index.subscribe(c.stakeholderID, c.productIDs, c.batchNumbers)
	h.updateIndexGauges()
	slog.Debug("Subscription updated",
		"stakeholder_id", c.stakeholderID,
		"products", len(c.productIDs),
		"batches", len(c.batchNumbers),
	)
	return nil
}

func (h *Hub) handleUnsubscribe(c unsubscribeCmd) error {
	// A connection may only withdraw interest for the identity it declared.
	if bound, ok := h.bindings.stakeholderFor(c.connectionID); ok && bound != c.stakeholderID {
		return domain.ErrAlreadyBound
	}
	h.index.unsubscribe(c.stakeholderID, c.productIDs, c.batchNumbers)
	h.updateIndexGauges()
	return nil
}

func (h *Hub) handleBroadcast(event domain.TrackingEvent) domain.DeliveryReport {
	targets := h.index.interested(event.ProductID, event.BatchNumber)
	for _, stakeholderID := range event.Stakeholders {
		targets[stakeholderID] = struct{}{}
	}

	metrics.EventsBroadcastTotal.WithLabelValues(string(event.EventType)).Inc()

	report := domain.DeliveryReport{Targeted: len(targets)}
	if len(targets) == 0 {
		return report
	}

	data, err := json.Marshal(domain.NewEventEnvelope(event))
	if err != nil {
		slog.Error("Failed to marshal tracking event", "event_id", event.ID, "error", err)
		return report
	}

	for stakeholderID := range targets {
		for connectionID := range h.bindings.connectionsFor(stakeholderID) {
			cw, exists := h.conns[connectionID]
			if !exists || !cw.enqueue(data) {
				report.Dropped++
				continue
			}
			report.ConnectionsReached++
		}
	}

	metrics.EventDeliveriesTotal.WithLabelValues("delivered").Add(float64(report.ConnectionsReached))
	metrics.EventDeliveriesTotal.WithLabelValues("dropped").Add(float64(report.Dropped))
	metrics.BroadcastFanout.Observe(float64(report.ConnectionsReached))

	if report.Dropped > 0 {
		slog.Warn("Broadcast dropped deliveries",
			"event_id", event.ID,
			"product_id", event.ProductID,
			"batch_number", event.BatchNumber,
			"dropped", report.Dropped,
		)
	}
	return report
}

func (h *Hub) handleSend(connectionID uuid.UUID, payload []byte) bool {
	cw, exists := h.conns[connectionID]
	if !exists {
		return false
	}
	return cw.enqueue(payload)
}

func (h *Hub) handleStop() {
	slog.Info("Hub shutting down", "connections", len(h.conns))
	h.closeAllClients("Server shutting down")
	slog.Info("Hub shutdown complete")
}

// closeAllClients closes all client connections with the given reason.
// Used during panic recovery and graceful shutdown.
func (h *Hub) closeAllClients(reason string) {
	for connectionID, cw := range h.conns {
		cw.stopGraceful(reason)
		delete(h.conns, connectionID)
		h.bindings.unbind(connectionID)
	}
	metrics.HubLiveConnections.Set(0)
}

func (h *Hub) updateIndexGauges() {
	metrics.HubSubscribedStakeholders.Set(float64(h.index.stakeholderCount()))
	metrics.HubTrackedProducts.Set(float64(h.index.productCount()))
	metrics.HubTrackedBatches.Set(float64(h.index.batchCount()))
}
