package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
)

var ErrInvalidEnvelope = errors.New("telemetry: invalid envelope")

// Envelope is the JSON body posted by the agent runtime.
type Envelope struct {
	Type              events.Type     `json:"type"`
	Timestamp         Timestamp       `json:"timestamp"`
	RoomName          string          `json:"roomName,omitempty"`
	TwilioCallSid     string          `json:"twilioCallSid,omitempty"`
	CallerPhoneNumber string          `json:"callerPhoneNumber,omitempty"`
	AgentID           string          `json:"agentId,omitempty"`
	Data              json.RawMessage `json:"data,omitempty"`
}

// Timestamp accepts RFC3339 strings or unix milliseconds. Zero means absent.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		t.Time = parsed.UTC()
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	t.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// Validate checks the closed type enumeration and that at least one
// resolvable identifier is present.
func (e Envelope) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidEnvelope)
	}
	if !e.Type.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidEnvelope, events.ErrUnknownType, e.Type)
	}
	if e.Criteria().Empty() {
		return fmt.Errorf("%w: roomName, twilioCallSid or agentId with callerPhoneNumber is required", ErrInvalidEnvelope)
	}
	if len(e.Data) > 0 && !json.Valid(e.Data) {
		return fmt.Errorf("%w: data is not valid json", ErrInvalidEnvelope)
	}
	return nil
}

// Criteria builds the resolver lookup. Some runtime builds send identifiers
// only inside data, so each top-level field falls back to its data twin.
func (e Envelope) Criteria() calls.Criteria {
	var inner struct {
		RoomName          string `json:"roomName"`
		TwilioCallSid     string `json:"twilioCallSid"`
		CallerPhoneNumber string `json:"callerPhoneNumber"`
		AgentID           string `json:"agentId"`
	}
	// Non-object data or non-string ids leave inner partially zero.
	_ = json.Unmarshal(e.Data, &inner)

	return calls.Criteria{
		RoomName:          firstNonBlank(e.RoomName, inner.RoomName),
		ProviderCallID:    firstNonBlank(e.TwilioCallSid, inner.TwilioCallSid),
		AgentID:           firstNonBlank(e.AgentID, inner.AgentID),
		CallerPhoneNumber: firstNonBlank(e.CallerPhoneNumber, inner.CallerPhoneNumber),
	}
}

func firstNonBlank(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// EventData returns Data with the envelope identifiers folded in where the
// data object does not already carry them. Non-object data is returned as is.
func (e Envelope) EventData() json.RawMessage {
	data := bytes.TrimSpace(e.Data)
	if len(data) == 0 || string(data) == "null" {
		data = []byte("{}")
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return json.RawMessage(data)
	}
	fold := func(key, v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		if _, ok := m[key]; ok {
			return
		}
		b, _ := json.Marshal(v)
		m[key] = b
	}
	fold("roomName", e.RoomName)
	fold("twilioCallSid", e.TwilioCallSid)
	fold("callerPhoneNumber", e.CallerPhoneNumber)
	fold("agentId", e.AgentID)

	out, err := json.Marshal(m)
	if err != nil {
		return json.RawMessage(data)
	}
	return out
}
