package relay

import (
	"time"

	"github.com/google/uuid"
)

// TallyState is the cached snapshot replayed to late joiners and broadcast on
// every update. Program and Preview are nil while no input is assigned.
type TallyState struct {
	Program     *string
	Preview     *string
	Inputs      map[string]string
	LastUpdated time.Time
}

// Session is an isolated broadcast domain. Sessions are created lazily on the
// first registration naming an unknown id and deleted the moment the member
// set empties; a later registration under the same id starts from scratch.
type Session struct {
	ID         string
	Controller *Client
	Members    map[uuid.UUID]*Client
	Tally      TallyState
	CreatedAt  time.Time
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Members:   make(map[uuid.UUID]*Client),
		Tally:     TallyState{Inputs: make(map[string]string)},
		CreatedAt: now,
	}
}
