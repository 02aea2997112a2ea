package events

import (
	"encoding/json"
	"time"
)

// Event is an immutable, append-only fact about a call.
//
// Invariants:
// - Events are never updated or deleted.
// - call_id is required.
// - Ordering within a call is by OccurredAt, not insertion order. Providers retry,
//   so the same fact may be appended twice; readers must tolerate duplicates.
//
// Storage (Postgres): table agent_events, INSERT-only, indexed on (call_id, occurred_at).
// Data is stored opaquely as JSONB; see payload.go for the typed views.
type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	Type       Type      `json:"type" db:"type"`
	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`

	Data json.RawMessage `json:"data,omitempty" db:"data"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Type is the closed enumeration of event types. Keep values stable; they are
// part of the agent-runtime telemetry contract and persisted as-is.
type Type string

const (
	// routing
	TypeCallReceived  Type = "call_received"
	TypeRoutedToTeam  Type = "routed_to_team"
	TypeRoutedToAgent Type = "routed_to_agent"
	TypeDialCompleted Type = "dial_completed"

	// transfer
	TypeTransferInitiated   Type = "transfer_initiated"
	TypeTransferFailed      Type = "transfer_failed"
	TypeTransferReconnected Type = "transfer_reconnected"
	TypeTransferSuccess     Type = "transfer_success"

	// session
	TypeRoomConnected     Type = "room_connected"
	TypeSessionComplete   Type = "session_complete"
	TypeParticipantJoined Type = "participant_joined"
	TypeParticipantLeft   Type = "participant_left"
	TypeAgentStateChanged Type = "agent_state_changed"
	TypeUserStateChanged  Type = "user_state_changed"
	TypeFunctionCall      Type = "function_call"
	TypeError             Type = "error"

	// summary
	TypeTranscript       Type = "transcript"
	TypeMetricsCollected Type = "metrics_collected"
	TypeTotalLatency     Type = "total_latency"
)

type Category string

const (
	CategoryRouting  Category = "routing"
	CategoryTransfer Category = "transfer"
	CategorySession  Category = "session"
	CategorySummary  Category = "summary"
)

var categories = map[Type]Category{
	TypeCallReceived:  CategoryRouting,
	TypeRoutedToTeam:  CategoryRouting,
	TypeRoutedToAgent: CategoryRouting,
	TypeDialCompleted: CategoryRouting,

	TypeTransferInitiated:   CategoryTransfer,
	TypeTransferFailed:      CategoryTransfer,
	TypeTransferReconnected: CategoryTransfer,
	TypeTransferSuccess:     CategoryTransfer,

	TypeRoomConnected:     CategorySession,
	TypeSessionComplete:   CategorySession,
	TypeParticipantJoined: CategorySession,
	TypeParticipantLeft:   CategorySession,
	TypeAgentStateChanged: CategorySession,
	TypeUserStateChanged:  CategorySession,
	TypeFunctionCall:      CategorySession,
	TypeError:             CategorySession,

	TypeTranscript:       CategorySummary,
	TypeMetricsCollected: CategorySummary,
	TypeTotalLatency:     CategorySummary,
}

// Valid reports whether t belongs to the closed enumeration.
func (t Type) Valid() bool {
	_, ok := categories[t]
	return ok
}

// Category returns the category of t, or "" for unknown types.
func (t Type) Category() Category { return categories[t] }

// Mutating reports whether events of this type drive Call record transitions.
// Unattributable mutating events are rejected; everything else is logged and skipped.
func (t Type) Mutating() bool {
	switch t {
	case TypeRoomConnected, TypeSessionComplete, TypeTranscript,
		TypeTransferInitiated, TypeTransferReconnected, TypeDialCompleted:
		return true
	default:
		return false
	}
}
