package routing

import "voice-agent-platform/internal/events"

// Decision is the provider-agnostic output of the routing engine.
//
// It must contain *only* information required for the provider adapter boundary
// (e.g., the TwiML builder) to execute the decision, plus the events the
// adapter records for it, in order.
type Decision struct {
	OrganizationID string `json:"organization_id"`
	CallID         string `json:"call_id,omitempty"`

	Action Action `json:"action"`
	// ConnectTo is a PSTN number for dial actions and a room name for
	// ActionReconnectRoom. Empty for the rest.
	ConnectTo string `json:"connect_to,omitempty"`

	Events []events.Type `json:"events,omitempty"`

	// Reason is optional and intended for internal logs/metrics.
	Reason string `json:"reason,omitempty"`
}

type Action string

const (
	// ActionDialTeam dials the human team with a dial-status callback.
	ActionDialTeam Action = "dial_team"
	// ActionConnectAgent opens a new agent session over SIP.
	ActionConnectAgent Action = "connect_agent"
	// ActionReconnectRoom re-bridges the caller into the existing agent room.
	ActionReconnectRoom Action = "reconnect_room"
	// ActionDialTransfer dials a transfer target requested by the agent.
	ActionDialTransfer Action = "dial_transfer"
	ActionHangup       Action = "hangup"
	// ActionApology plays the apology message and hangs up.
	ActionApology Action = "apology"
)
