package events

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is the typed view of an event's Data. Only the types the lifecycle
// reconciler and latency aggregator branch on get a dedicated struct; every other
// type decodes to Passthrough.
type Payload interface {
	payload()
}

type RoomConnected struct {
	RoomName       string `json:"roomName"`
	ProviderCallID string `json:"twilioCallSid,omitempty"`
}

type SessionComplete struct {
	// DurationMs is the session length reported by the agent runtime.
	DurationMs   *float64        `json:"durationMs,omitempty"`
	Usage        json.RawMessage `json:"usage,omitempty"`
	Config       json.RawMessage `json:"config,omitempty"`
	RecordingURL string          `json:"recordingUrl,omitempty"`
}

type Transcript struct {
	Items      []TranscriptItem `json:"items"`
	DurationMs *float64         `json:"durationMs,omitempty"`
}

// TranscriptItem is one conversational turn. Content and Timestamp are kept raw
// because the runtime emits both strings and arrays for content.
type TranscriptItem struct {
	ID          string          `json:"id,omitempty"`
	Role        string          `json:"role"`
	Content     json.RawMessage `json:"content,omitempty"`
	Timestamp   json.RawMessage `json:"timestamp,omitempty"`
	Interrupted bool            `json:"interrupted,omitempty"`
}

// Key identifies an item for merge purposes.
func (i TranscriptItem) Key() string {
	if i.ID != "" {
		return "id:" + i.ID
	}
	return "c:" + i.Role + "|" + string(compact(i.Content)) + "|" + string(compact(i.Timestamp))
}

type TransferInitiated struct {
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

// TransferOutcome backs transfer_failed, transfer_reconnected and transfer_success.
type TransferOutcome struct {
	DialStatus string `json:"dialStatus,omitempty"`
	Target     string `json:"target,omitempty"`
	RoomName   string `json:"roomName,omitempty"`
}

type DialCompleted struct {
	DialStatus      string `json:"dialStatus,omitempty"`
	DurationSeconds int    `json:"durationSeconds,omitempty"`
}

// Metrics backs metrics_collected. MetricType is the category discriminator:
// eou, llm, tts or total. Values are milliseconds.
type Metrics struct {
	MetricType     string   `json:"metricType"`
	EOUDelayMs     *float64 `json:"endOfUtteranceDelayMs,omitempty"`
	TTFTMs         *float64 `json:"ttftMs,omitempty"`
	TTFBMs         *float64 `json:"ttfbMs,omitempty"`
	TotalLatencyMs *float64 `json:"totalLatencyMs,omitempty"`
}

type TotalLatency struct {
	TotalLatencyMs *float64 `json:"totalLatencyMs,omitempty"`
}

// Passthrough is the untyped payload for telemetry the system only logs.
type Passthrough map[string]any

func (RoomConnected) payload()     {}
func (SessionComplete) payload()   {}
func (Transcript) payload()        {}
func (TransferInitiated) payload() {}
func (TransferOutcome) payload()   {}
func (DialCompleted) payload()     {}
func (Metrics) payload()           {}
func (TotalLatency) payload()      {}
func (Passthrough) payload()       {}

// Decode returns the typed payload for an event.
func Decode(e Event) (Payload, error) {
	return DecodeData(e.Type, e.Data)
}

// DecodeData decodes raw data according to the event type. Empty data yields the
// zero value of the typed payload.
func DecodeData(t Type, data json.RawMessage) (Payload, error) {
	var p Payload
	switch t {
	case TypeRoomConnected:
		p = &RoomConnected{}
	case TypeSessionComplete:
		p = &SessionComplete{}
	case TypeTranscript:
		p = &Transcript{}
	case TypeTransferInitiated:
		p = &TransferInitiated{}
	case TypeTransferFailed, TypeTransferReconnected, TypeTransferSuccess:
		p = &TransferOutcome{}
	case TypeDialCompleted:
		p = &DialCompleted{}
	case TypeMetricsCollected:
		p = &Metrics{}
	case TypeTotalLatency:
		p = &TotalLatency{}
	default:
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
		}
		out := Passthrough{}
		if len(bytes.TrimSpace(data)) > 0 {
			if err := json.Unmarshal(data, &out); err != nil {
				return nil, fmt.Errorf("events: decode %s: %w", t, err)
			}
		}
		return out, nil
	}

	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("events: decode %s: %w", t, err)
		}
	}
	return deref(p), nil
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *RoomConnected:
		return *v
	case *SessionComplete:
		return *v
	case *Transcript:
		return *v
	case *TransferInitiated:
		return *v
	case *TransferOutcome:
		return *v
	case *DialCompleted:
		return *v
	case *Metrics:
		return *v
	case *TotalLatency:
		return *v
	}
	return p
}

// MustData marshals v for use as event Data. Only use with values that always
// marshal (structs of plain fields, maps of strings).
func MustData(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("events: marshal payload: %v", err))
	}
	return b
}

func compact(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
