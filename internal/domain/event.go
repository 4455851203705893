package domain

import (
	"time"

	"github.com/holiman/uint256"
)

// EventType names a lifecycle notification emitted by the engine.
type EventType string

const (
	EventWindowStarted    EventType = "window_started"
	EventWindowClosed     EventType = "window_closed"
	EventBetPlaced        EventType = "bet_placed"
	EventPayoutProcessed  EventType = "payout_processed"
	EventPayoutFailed     EventType = "payout_failed"
	EventTreasurySwept    EventType = "treasury_swept"
	EventSettlementClosed EventType = "settlement_completed"
)

// Event is a notification consumed by logging and indexing collaborators.
// Only the fields relevant to Type are populated.
type Event struct {
	Type       EventType    `json:"type"`
	Round      uint64       `json:"round"`
	Operator   *Address     `json:"operator,omitempty"`
	Candidates []Address    `json:"candidates,omitempty"`
	Bettor     *Address     `json:"bettor,omitempty"`
	Candidate  *Address     `json:"candidate,omitempty"`
	Position   *bool        `json:"position,omitempty"`
	Amount     *uint256.Int `json:"amount,omitempty"`
	Won        bool         `json:"won,omitempty"`
	Error      string       `json:"error,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Channel returns the pub/sub channel an event is published on.
func (e Event) Channel() string {
	return "ch:" + string(e.Type)
}
