package routing

import (
	"reflect"
	"testing"

	"voice-agent-platform/internal/events"
)

func TestEngine_RouteInbound(t *testing.T) {
	e := NewEngine()

	d, err := e.RouteInbound(InboundInput{OrganizationID: "o", CallID: "c", TeamNumber: " +15550001111 "})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Action != ActionDialTeam || d.ConnectTo != "+15550001111" {
		t.Fatalf("expected dial team; got %+v", d)
	}
	if !reflect.DeepEqual(d.Events, []events.Type{events.TypeRoutedToTeam}) {
		t.Fatalf("unexpected events: %v", d.Events)
	}

	d, err = e.RouteInbound(InboundInput{OrganizationID: "o", CallID: "c"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Action != ActionConnectAgent {
		t.Fatalf("expected connect agent; got %q", d.Action)
	}

	if _, err := e.RouteInbound(InboundInput{CallID: "c"}); err == nil {
		t.Fatalf("expected organization_id error")
	}
}

func TestEngine_RouteDialOutcome(t *testing.T) {
	e := NewEngine()
	cases := []struct {
		name   string
		room   string
		status string
		action Action
		events []events.Type
	}{
		{"transfer no-answer re-bridges", "room-abc", "no-answer", ActionReconnectRoom, []events.Type{events.TypeTransferFailed, events.TypeTransferReconnected}},
		{"transfer busy re-bridges", "room-abc", "busy", ActionReconnectRoom, []events.Type{events.TypeTransferFailed, events.TypeTransferReconnected}},
		{"transfer answered hangs up", "room-abc", "completed", ActionHangup, []events.Type{events.TypeTransferSuccess}},
		{"team failed falls back to agent", "", "failed", ActionConnectAgent, []events.Type{events.TypeRoutedToAgent}},
		{"team answered completes", "", "completed", ActionHangup, []events.Type{events.TypeDialCompleted}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := e.RouteDialOutcome(DialOutcomeInput{OrganizationID: "o", CallID: "c", RoomName: tc.room, DialStatus: tc.status})
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if d.Action != tc.action {
				t.Fatalf("expected %q; got %q", tc.action, d.Action)
			}
			if !reflect.DeepEqual(d.Events, tc.events) {
				t.Fatalf("expected events %v; got %v", tc.events, d.Events)
			}
			if d.Action == ActionReconnectRoom && d.ConnectTo != tc.room {
				t.Fatalf("expected reconnect to %q; got %q", tc.room, d.ConnectTo)
			}
		})
	}
}

func TestEngine_RouteTransfer(t *testing.T) {
	e := NewEngine()

	d, err := e.RouteTransfer(TransferInput{CallID: "c", Target: "+15550001111"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if d.Action != ActionDialTransfer || d.ConnectTo != "+15550001111" {
		t.Fatalf("unexpected decision: %+v", d)
	}

	d, _ = e.RouteTransfer(TransferInput{CallID: "c"})
	if d.Action != ActionApology || len(d.Events) != 0 {
		t.Fatalf("expected apology without events; got %+v", d)
	}
}

func TestEngine_IsFailure(t *testing.T) {
	e := NewEngine()
	for _, s := range []string{"no-answer", "BUSY", " failed "} {
		if !e.IsFailure(s) {
			t.Fatalf("expected %q to be a failure", s)
		}
	}
	for _, s := range []string{"completed", "answered", ""} {
		if e.IsFailure(s) {
			t.Fatalf("expected %q not to be a failure", s)
		}
	}
}
