package routing

import (
	"errors"
	"strings"

	"voice-agent-platform/internal/events"
)

// Dial outcomes that count as "nobody picked up".
const (
	DialNoAnswer = "no-answer"
	DialBusy     = "busy"
	DialFailed   = "failed"
)

// Engine evaluates what the telephony adapter should do next.
//
// Return routing decision only. No side effects (no DB writes, no provider calls).
//
// Two modes share the dial-status callback:
//   - routing mode: the call was sent to the team number first and has no agent
//     room yet. A failed dial falls back to a fresh agent session.
//   - transfer mode: the agent handed the caller to a human and the call already
//     owns a room. A failed dial re-bridges into that same room so the event
//     history stays attached to one call.
type Engine struct {
	// FailureOutcomes overrides the dial statuses treated as failure.
	FailureOutcomes []string
}

func NewEngine() *Engine {
	return &Engine{FailureOutcomes: []string{DialNoAnswer, DialBusy, DialFailed}}
}

type InboundInput struct {
	OrganizationID string
	CallID         string
	TeamNumber     string
}

// RouteInbound picks the first hop for a new call.
func (e *Engine) RouteInbound(in InboundInput) (Decision, error) {
	if in.OrganizationID == "" {
		return Decision{}, errors.New("routing: organization_id required")
	}
	if in.CallID == "" {
		return Decision{}, errors.New("routing: call_id required")
	}
	d := Decision{OrganizationID: in.OrganizationID, CallID: in.CallID}
	if team := strings.TrimSpace(in.TeamNumber); team != "" {
		d.Action = ActionDialTeam
		d.ConnectTo = team
		d.Events = []events.Type{events.TypeRoutedToTeam}
		d.Reason = "team_number"
		return d, nil
	}
	d.Action = ActionConnectAgent
	d.Events = []events.Type{events.TypeRoutedToAgent}
	d.Reason = "agent_only"
	return d, nil
}

type DialOutcomeInput struct {
	OrganizationID string
	CallID         string
	// RoomName is the agent room owned by the call, if any.
	RoomName   string
	DialStatus string
}

// RouteDialOutcome handles the dial-status callback.
func (e *Engine) RouteDialOutcome(in DialOutcomeInput) (Decision, error) {
	if in.CallID == "" {
		return Decision{}, errors.New("routing: call_id required")
	}
	d := Decision{OrganizationID: in.OrganizationID, CallID: in.CallID}
	failed := e.IsFailure(in.DialStatus)

	switch {
	case in.RoomName != "" && failed:
		d.Action = ActionReconnectRoom
		d.ConnectTo = in.RoomName
		d.Events = []events.Type{events.TypeTransferFailed, events.TypeTransferReconnected}
		d.Reason = "transfer_" + in.DialStatus
	case in.RoomName != "":
		d.Action = ActionHangup
		d.Events = []events.Type{events.TypeTransferSuccess}
		d.Reason = "transfer_answered"
	case failed:
		d.Action = ActionConnectAgent
		d.Events = []events.Type{events.TypeRoutedToAgent}
		d.Reason = "team_" + in.DialStatus
	default:
		d.Action = ActionHangup
		d.Events = []events.Type{events.TypeDialCompleted}
		d.Reason = "team_answered"
	}
	return d, nil
}

type TransferInput struct {
	OrganizationID string
	CallID         string
	Target         string
}

// RouteTransfer dials the number the agent asked to transfer to.
func (e *Engine) RouteTransfer(in TransferInput) (Decision, error) {
	if in.CallID == "" {
		return Decision{}, errors.New("routing: call_id required")
	}
	d := Decision{OrganizationID: in.OrganizationID, CallID: in.CallID}
	if strings.TrimSpace(in.Target) == "" {
		d.Action = ActionApology
		d.Reason = "transfer_target_missing"
		return d, nil
	}
	d.Action = ActionDialTransfer
	d.ConnectTo = in.Target
	d.Events = []events.Type{events.TypeTransferInitiated}
	d.Reason = "agent_transfer"
	return d, nil
}

// IsFailure reports whether a dial status means the callee never answered.
func (e *Engine) IsFailure(status string) bool {
	status = strings.ToLower(strings.TrimSpace(status))
	for _, s := range e.FailureOutcomes {
		if s == status {
			return true
		}
	}
	return false
}
