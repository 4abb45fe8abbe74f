package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nabekah/farmkonnect-tracking/internal/domain"
	"github.com/nabekah/farmkonnect-tracking/internal/metrics"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Stakeholder apps and dashboards connect cross-origin
	},
}

func (s *Server) handleTracking(c echo.Context) error {
	ip := c.RealIP()

	ok, reason := s.limits.Acquire(ip)
	if !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("Connection rejected", "ip", ip, "reason", string(reason))
		if reason == LimitReasonRate {
			return c.String(http.StatusTooManyRequests, "Too many connection attempts")
		}
		return c.String(http.StatusServiceUnavailable, "Connection limit reached")
	}
	defer s.limits.Release(ip)

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}

	connectionID, err := s.hub.Register(conn)
	if err != nil {
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		slog.Error("Failed to register connection", "error", err)
		_ = conn.Close()
		return nil
	}
	metrics.WebSocketConnectionsTotal.WithLabelValues("success").Inc()

	// Read pump — blocks until the connection closes
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.dispatchControlMessage(connectionID, data)
	}

	s.hub.Deregister(connectionID)

	return nil //nolint:nilerr // ReadMessage err is block-scoped; outer err is nil
}

// dispatchControlMessage handles one client control message. Malformed and
// unknown messages never close the connection.
func (s *Server) dispatchControlMessage(connectionID uuid.UUID, data []byte) {
	msg, err := domain.ParseControlMessage(data)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownMessageType) {
			slog.Warn("Ignoring unknown message type", "connection_id", connectionID.String(), "error", err)
			return
		}
		metrics.WebSocketMalformedMessages.Inc()
		slog.Warn("Malformed control message", "connection_id", connectionID.String(), "error", err)
		s.reply(connectionID, domain.NewErrorMessage(err.Error()))
		return
	}

	switch m := msg.(type) {
	case domain.SubscribeMessage:
		if err := s.hub.Subscribe(connectionID, m.StakeholderID, m.ProductIDs, m.BatchNumbers); err != nil {
			slog.Warn("Subscribe rejected",
				"connection_id", connectionID.String(),
				"stakeholder_id", m.StakeholderID,
				"error", err,
			)
			s.reply(connectionID, domain.NewErrorMessage(err.Error()))
			return
		}
		s.reply(connectionID, domain.NewSubscribeAck(m.ProductIDs, m.BatchNumbers))
	case domain.UnsubscribeMessage:
		if err := s.hub.Unsubscribe(connectionID, m.StakeholderID, m.ProductIDs, m.BatchNumbers); err != nil {
			s.reply(connectionID, domain.NewErrorMessage(err.Error()))
			return
		}
		s.reply(connectionID, domain.NewUnsubscribeAck(m.ProductIDs, m.BatchNumbers))
	case domain.PingMessage:
		s.reply(connectionID, domain.NewPong())
	default:
		slog.Warn("Unhandled control message type", "message_type", fmt.Sprintf("%T", msg))
	}
}

// reply serializes a server message and hands it to the connection's writer.
// Replies share the writer with event fan-out so the connection is only ever
// written from one goroutine.
func (s *Server) reply(connectionID uuid.UUID, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal reply", "connection_id", connectionID.String(), "error", err)
		return
	}
	if !s.hub.Send(connectionID, data) {
		slog.Debug("Reply dropped", "connection_id", connectionID.String())
	}
}
