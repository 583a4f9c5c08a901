package relay

import (
	"encoding/json"
	"time"
)

// Canonical inbound message types. Legacy aliases are rewritten to these
// before dispatch.
const (
	typeRegister    = "register"
	typeRegisterPD  = "register_pd"
	typeTallyUpdate = "tally_update"
	typeInputList   = "input_list"
	typePing        = "ping"
)

// Outbound message types.
const (
	typeSessionRegistered = "session_registered"
	typePong              = "pong"
	typeError             = "error"
)

// envelope is the parsed form of an inbound message. The type discriminator
// decides which of the remaining fields matter.
type envelope struct {
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId"`
	Role      string            `json:"role"`
	UserID    string            `json:"userId"`
	Token     string            `json:"token"`
	Program   *string           `json:"program"`
	Preview   *string           `json:"preview"`
	Inputs    map[string]string `json:"inputs"`
}

// parseEnvelope decodes a raw frame and rewrites legacy aliases to canonical
// types: register_pd forces the controller role, input_list becomes a
// tally_update carrying whatever fields the sender supplied.
func parseEnvelope(data []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformedMessage
	}

	switch env.Type {
	case typeRegisterPD:
		env.Type = typeRegister
		env.Role = string(RoleControllerLegacy)
	case typeInputList:
		env.Type = typeTallyUpdate
	}

	return &env, nil
}

type registeredPayload struct {
	Type          string `json:"type"`
	SessionID     string `json:"sessionId"`
	Role          Role   `json:"role"`
	UserID        string `json:"userId,omitempty"`
	Authenticated bool   `json:"authenticated,omitempty"`
	Timestamp     string `json:"timestamp"`
}

type tallyPayload struct {
	Type      string            `json:"type"`
	Program   *string           `json:"program"`
	Preview   *string           `json:"preview"`
	Inputs    map[string]string `json:"inputs"`
	Timestamp string            `json:"timestamp"`
}

type pongPayload struct {
	Type string `json:"type"`
}

type errorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func newRegisteredPayload(client *Client, now time.Time) registeredPayload {
	return registeredPayload{
		Type:          typeSessionRegistered,
		SessionID:     client.SessionID,
		Role:          client.Role,
		UserID:        client.UserID,
		Authenticated: client.Authenticated,
		Timestamp:     wireTimestamp(now),
	}
}

// newTallyPayload wraps a session's cached state as an outbound tally_update.
func newTallyPayload(session *Session) tallyPayload {
	return tallyPayload{
		Type:      typeTallyUpdate,
		Program:   session.Tally.Program,
		Preview:   session.Tally.Preview,
		Inputs:    session.Tally.Inputs,
		Timestamp: wireTimestamp(session.Tally.LastUpdated),
	}
}

func newErrorPayload(err error, now time.Time) errorPayload {
	return errorPayload{
		Type:      typeError,
		Message:   err.Error(),
		Timestamp: wireTimestamp(now),
	}
}

func wireTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
