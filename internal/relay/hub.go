package relay

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/newproject8/returnfeed-backend/internal/auth"
	"github.com/newproject8/returnfeed-backend/internal/metrics"
)

// TokenVerifier validates bearer credentials for the authenticated variant.
// Implemented by auth.Verifier.
type TokenVerifier interface {
	Verify(token string) (auth.Claims, error)
}

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdConnect struct {
	connID uuid.UUID
	conn   *websocket.Conn
}

func (cmdConnect) hubCmd() {}

type cmdFrame struct {
	connID uuid.UUID
	data   []byte
}

func (cmdFrame) hubCmd() {}

type cmdDisconnect struct {
	connID uuid.UUID
}

func (cmdDisconnect) hubCmd() {}

type cmdSessionCount struct {
	replyCh chan int
}

func (cmdSessionCount) hubCmd() {}

type cmdClientCount struct {
	sessionID string
	replyCh   chan int
}

func (cmdClientCount) hubCmd() {}

type cmdStop struct {
	done chan struct{}
}

func (cmdStop) hubCmd() {}

// --- Hub ---

// Hub owns the connection directory, the session registry, and the tally
// broadcast path. All state lives on the single run goroutine; the exported
// methods only exchange commands with it. Serializing register and tally
// handling this way makes the controller check-and-set atomic and guarantees
// that a joiner's state snapshot is queued before any broadcast triggered by
// later traffic.
type Hub struct {
	cmdCh    chan hubCmd
	clock    clockwork.Clock
	verifier TokenVerifier // nil disables the authenticated variant

	conns    map[uuid.UUID]*clientWriter // every live connection
	clients  map[uuid.UUID]*Client       // registered connections only
	sessions map[string]*Session
}

// NewHub creates the hub and starts its run goroutine. Pass a nil verifier to
// run the unauthenticated variant.
func NewHub(verifier TokenVerifier, clock clockwork.Clock) *Hub {
	h := &Hub{
		cmdCh:    make(chan hubCmd, 256),
		clock:    clock,
		verifier: verifier,
		conns:    make(map[uuid.UUID]*clientWriter),
		clients:  make(map[uuid.UUID]*Client),
		sessions: make(map[string]*Session),
	}
	go h.run()
	return h
}

// --- Public API ---

// Connect registers a new transport connection with the hub. The hub takes
// over all writes to conn from this point on.
func (h *Hub) Connect(connID uuid.UUID, conn *websocket.Conn) {
	h.cmdCh <- cmdConnect{connID: connID, conn: conn}
}

// HandleFrame feeds one inbound frame from the connection's read loop.
func (h *Hub) HandleFrame(connID uuid.UUID, data []byte) {
	h.cmdCh <- cmdFrame{connID: connID, data: data}
}

// Disconnect runs the cleanup path for a closed connection. Safe to call for
// connections that never registered.
func (h *Hub) Disconnect(connID uuid.UUID) {
	h.cmdCh <- cmdDisconnect{connID: connID}
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdSessionCount{replyCh: replyCh}
	return <-replyCh
}

// ClientCount returns the number of members registered in a session.
func (h *Hub) ClientCount(sessionID string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdClientCount{sessionID: sessionID, replyCh: replyCh}
	return <-replyCh
}

// Stop shuts the hub down, closing every connection. Blocks until the run
// goroutine has exited.
func (h *Hub) Stop() {
	done := make(chan struct{})
	h.cmdCh <- cmdStop{done: done}
	<-done
}

// --- Run loop ---

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdConnect:
			h.handleConnect(c)
		case cmdFrame:
			h.handleFrame(c)
		case cmdDisconnect:
			h.teardown(c.connID)
		case cmdSessionCount:
			c.replyCh <- len(h.sessions)
		case cmdClientCount:
			if session, ok := h.sessions[c.sessionID]; ok {
				c.replyCh <- len(session.Members)
			} else {
				c.replyCh <- 0
			}
		case cmdStop:
			h.handleStop()
			close(c.done)
			return
		default:
			slog.Warn("Hub: unknown command type", "command", cmd)
		}
	}
}

func (h *Hub) handleConnect(c cmdConnect) {
	h.conns[c.connID] = newClientWriter(c.conn, h.clock)
	metrics.ConnectedClients.Inc()
}

// handleFrame parses one inbound frame and dispatches it. All expected faults
// are answered with an error message; none of them close the connection
// except the authentication family during registration.
func (h *Hub) handleFrame(c cmdFrame) {
	cw, ok := h.conns[c.connID]
	if !ok {
		// Frame raced with teardown; the connection is already gone.
		return
	}
	cw.recordActivity()

	env, err := parseEnvelope(c.data)
	if err != nil {
		metrics.MalformedMessagesTotal.Inc()
		h.sendError(cw, err)
		return
	}

	metrics.MessagesTotal.WithLabelValues(env.Type).Inc()

	client, registered := h.clients[c.connID]
	if !registered && env.Type != typeRegister {
		h.sendError(cw, ErrNotRegistered)
		return
	}

	switch env.Type {
	case typeRegister:
		h.handleRegister(c.connID, cw, env)
	case typeTallyUpdate:
		h.handleTallyUpdate(client, cw, env)
	case typePing:
		h.send(cw, pongPayload{Type: typePong})
	default:
		slog.Warn("Unknown message type", "type", env.Type, "conn_id", c.connID)
	}
}

// handleRegister joins a connection to a session, creating the session on
// first use. The attempt is all-or-nothing: every failure leaves the
// directory and the registry untouched.
func (h *Hub) handleRegister(connID uuid.UUID, cw *clientWriter, env *envelope) {
	userID := env.UserID
	authenticated := false

	if h.verifier != nil {
		if env.Token == "" {
			metrics.AuthFailuresTotal.WithLabelValues("missing_token").Inc()
			h.sendError(cw, ErrAuthRequired)
			h.closePolicyViolation(connID, "authentication required")
			return
		}
		claims, err := h.verifier.Verify(env.Token)
		if err != nil {
			metrics.AuthFailuresTotal.WithLabelValues("invalid_token").Inc()
			h.sendError(cw, err)
			h.closePolicyViolation(connID, "authentication failed")
			return
		}
		userID = claims.UserID
		authenticated = true

		if Role(env.Role).IsController() && !claims.IsController {
			metrics.AuthFailuresTotal.WithLabelValues("insufficient_permission").Inc()
			h.sendError(cw, ErrInsufficientPermission)
			return
		}
	}

	if env.SessionID == "" {
		h.sendError(cw, ErrMissingSessionID)
		return
	}

	role := Role(env.Role)
	if role == "" {
		role = RoleViewer
	}
	if !validRole(role) {
		h.sendError(cw, ErrInvalidRole)
		return
	}

	// Controller slot check against the existing session, before anything is
	// mutated. "Live" means the slot holder's connection is still open.
	if role.IsController() {
		if existing, ok := h.sessions[env.SessionID]; ok && existing.Controller != nil {
			if _, live := h.conns[existing.Controller.ConnID]; live {
				h.sendError(cw, ErrControllerAlreadyConnected)
				return
			}
			existing.Controller = nil
		}
	}

	// A connection that registers again moves wholesale: detach it from its
	// previous session first so it never belongs to two at once.
	if prev, ok := h.clients[connID]; ok {
		h.detach(prev)
		delete(h.clients, connID)
	}

	now := h.clock.Now()
	session := h.getOrCreateSession(env.SessionID, now)

	client := &Client{
		ConnID:        connID,
		SessionID:     env.SessionID,
		Role:          role,
		UserID:        userID,
		Authenticated: authenticated,
		JoinedAt:      now,
	}

	if role.IsController() {
		session.Controller = client
		slog.Info("Controller registered", "session_id", session.ID, "user_id", userID)
	}
	session.Members[connID] = client
	h.clients[connID] = client

	h.send(cw, newRegisteredPayload(client, now))

	// Replay the cached state to the joiner only, ahead of any broadcast a
	// later update could queue for it.
	if len(session.Tally.Inputs) > 0 {
		h.send(cw, newTallyPayload(session))
	}

	slog.Info("Client registered",
		"session_id", session.ID, "role", role, "user_id", userID, "conn_id", connID)
}

// handleTallyUpdate applies a controller's update to the session cache and
// fans it out to every member, controller included.
func (h *Hub) handleTallyUpdate(client *Client, cw *clientWriter, env *envelope) {
	if h.verifier != nil && !client.Authenticated {
		h.sendError(cw, ErrNotAuthenticated)
		return
	}
	if !client.Role.IsController() {
		h.sendError(cw, ErrUnauthorized)
		return
	}

	session, ok := h.sessions[client.SessionID]
	if !ok {
		// Directory and registry are kept in step; nothing to update.
		return
	}

	inputs := env.Inputs
	if inputs == nil {
		inputs = make(map[string]string)
	}
	session.Tally = TallyState{
		Program:     env.Program,
		Preview:     env.Preview,
		Inputs:      inputs,
		LastUpdated: h.clock.Now(),
	}

	data, err := json.Marshal(newTallyPayload(session))
	if err != nil {
		slog.Error("Failed to marshal tally update", "session_id", session.ID, "error", err)
		return
	}

	// Delivery is best-effort and at-most-once: a member we cannot hand the
	// message to is dropped like a disconnect, never retried.
	var failed []uuid.UUID
	for connID, member := range session.Members {
		mw, open := h.conns[member.ConnID]
		if !open || !mw.trySend(data) {
			failed = append(failed, connID)
		}
	}
	for _, connID := range failed {
		slog.Warn("Dropping unreachable session member", "session_id", session.ID, "conn_id", connID)
		metrics.PrunedMembersTotal.Inc()
		h.teardown(connID)
	}

	metrics.TallyBroadcastsTotal.Inc()
}

func (h *Hub) getOrCreateSession(sessionID string, now time.Time) *Session {
	if session, ok := h.sessions[sessionID]; ok {
		return session
	}
	session := newSession(sessionID, now)
	h.sessions[sessionID] = session
	metrics.ActiveSessions.Inc()
	slog.Info("Session created", "session_id", sessionID)
	return session
}

// teardown is the single cleanup path for a connection, used for graceful
// closes, read errors, and failed deliveries alike. Idempotent.
func (h *Hub) teardown(connID uuid.UUID) {
	if cw, ok := h.conns[connID]; ok {
		delete(h.conns, connID)
		metrics.ConnectedClients.Dec()
		cw.stop()
	}

	client, ok := h.clients[connID]
	if !ok {
		return
	}
	h.detach(client)
	delete(h.clients, connID)
	slog.Info("Client disconnected",
		"session_id", client.SessionID, "role", client.Role, "user_id", client.UserID, "conn_id", connID)
}

// detach removes a client from its session's member set, clearing the
// controller slot when it held one and deleting the session when the set
// empties.
func (h *Hub) detach(client *Client) {
	session, ok := h.sessions[client.SessionID]
	if !ok {
		return
	}

	delete(session.Members, client.ConnID)

	if session.Controller != nil && session.Controller.ConnID == client.ConnID {
		session.Controller = nil
		slog.Info("Controller detached", "session_id", session.ID, "user_id", client.UserID)
	}

	if len(session.Members) == 0 {
		delete(h.sessions, session.ID)
		metrics.ActiveSessions.Dec()
		slog.Info("Removed empty session", "session_id", session.ID)
	}
}

// closePolicyViolation flushes queued messages, sends a 1008 close frame, and
// runs the cleanup path.
func (h *Hub) closePolicyViolation(connID uuid.UUID, reason string) {
	cw, ok := h.conns[connID]
	if !ok {
		return
	}
	cw.stopWithClose(websocket.ClosePolicyViolation, reason)
	h.teardown(connID)
}

func (h *Hub) handleStop() {
	for connID, cw := range h.conns {
		cw.stop()
		delete(h.conns, connID)
		metrics.ConnectedClients.Dec()
	}
	for sessionID := range h.sessions {
		delete(h.sessions, sessionID)
		metrics.ActiveSessions.Dec()
	}
	clear(h.clients)
}

func (h *Hub) send(cw *clientWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal outbound message", "error", err)
		return
	}
	cw.trySend(data)
}

func (h *Hub) sendError(cw *clientWriter, err error) {
	h.send(cw, newErrorPayload(err, h.clock.Now()))
}
