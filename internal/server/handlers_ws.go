package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/newproject8/returnfeed-backend/internal/logging"
	"github.com/newproject8/returnfeed-backend/internal/metrics"
)

const maxMessageSize = 64 * 1024

// handleWebSocket upgrades the connection, applies the handshake-time
// credential gate, and runs the read loop feeding the hub. It blocks for the
// lifetime of the connection.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()

	if !s.globalLimiter.Acquire() {
		metrics.ConnectionsRejectedTotal.WithLabelValues("capacity").Inc()
		return c.String(http.StatusServiceUnavailable, "server at capacity")
	}
	defer s.globalLimiter.Release()

	if !s.ipLimiter.Acquire(ip) {
		metrics.ConnectionsRejectedTotal.WithLabelValues("per_ip").Inc()
		return c.String(http.StatusTooManyRequests, "too many connections from this address")
	}
	defer s.ipLimiter.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade WebSocket: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	connID := uuid.New()
	log := logging.WithConn(connID.String()).With("remote_addr", ip)
	log.Info("New connection")

	// Handshake-time credential: verified before any message is processed;
	// failure closes the connection with a policy-violation signal.
	if s.verifier != nil {
		if token := c.QueryParam("token"); token != "" {
			if _, err := s.verifier.Verify(token); err != nil {
				log.Warn("Handshake token rejected", "error", err)
				metrics.AuthFailuresTotal.WithLabelValues("handshake").Inc()
				rejectConnection(conn, err)
				return nil
			}
		}
	}

	s.hub.Connect(connID, conn)

	limiter := rate.NewLimiter(rate.Limit(s.config.MessageRate), s.config.MessageBurst)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Info("Connection closed", "error", err)
			break
		}
		if !limiter.Allow() {
			log.Warn("Message rate limit exceeded; discarding message")
			continue
		}
		s.hub.HandleFrame(connID, data)
	}

	s.hub.Disconnect(connID)

	return nil
}

// rejectConnection sends an error message and a 1008 close frame on a
// connection the hub never saw.
func rejectConnection(conn *websocket.Conn, cause error) {
	payload, err := json.Marshal(map[string]string{
		"type":      "error",
		"message":   cause.Error(),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	}
	closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed")
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	_ = conn.WriteMessage(websocket.CloseMessage, closeMsg)
	_ = conn.Close()
}
