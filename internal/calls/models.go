package calls

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/latency"
)

// Call represents one tenant-scoped phone conversation.
//
// Multi-tenant invariant: OrganizationID is required on every row and never changes.
//
// Correlation keys are populated at different lifecycle points:
// - ProviderCallID and CallerPhoneNumber at creation (inbound webhook).
// - RoomName once the agent session starts. At most one call owns a given room name.
// - ProviderCallID may be re-keyed once when the call is re-bridged through SIP.
//
// Terminal fields (EndedAt, DurationSeconds, Usage, ConfigSnapshot, RecordingURL)
// are only set at completion. Late transcripts may still merge afterwards.
type Call struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	AgentID        string `json:"agent_id,omitempty" db:"agent_id"`

	ProviderCallID    string `json:"provider_call_id,omitempty" db:"provider_call_id"`
	RoomName          string `json:"room_name,omitempty" db:"room_name"`
	CallerPhoneNumber string `json:"caller_phone_number,omitempty" db:"caller_phone_number"`
	CalledNumber      string `json:"called_number,omitempty" db:"called_number"`

	Status         Status `json:"status" db:"status"`
	TransferTarget string `json:"transfer_target,omitempty" db:"transfer_target"`

	EndedAt         *time.Time              `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds *int                    `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Transcript      []events.TranscriptItem `json:"transcript,omitempty" db:"transcript"`
	Usage           json.RawMessage         `json:"usage,omitempty" db:"usage"`
	ConfigSnapshot  json.RawMessage         `json:"config_snapshot,omitempty" db:"config_snapshot"`
	RecordingURL    string                  `json:"recording_url,omitempty" db:"recording_url"`

	// LatencyStats is a cache of the aggregator output, not authoritative.
	LatencyStats *latency.ByCategory `json:"latency_stats,omitempty" db:"latency_stats"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusIncoming          Status = "incoming"
	StatusTransferredToTeam Status = "transferred_to_team"
	StatusConnectedToAgent  Status = "connected_to_agent"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

// Terminal reports whether the status must not be regressed by later events.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NewInbound builds the record created by the telephony inbound-call webhook.
// No agent session exists yet, so RoomName is empty.
func NewInbound(organizationID, agentID, providerCallID, caller, called string, now time.Time) Call {
	now = now.UTC()
	return Call{
		ID:                uuid.NewString(),
		OrganizationID:    organizationID,
		AgentID:           agentID,
		ProviderCallID:    providerCallID,
		CallerPhoneNumber: caller,
		CalledNumber:      called,
		Status:            StatusIncoming,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Patch is a field-scoped mutation keyed by call id. Nil fields are left unchanged,
// so concurrent patches touching different fields do not overwrite each other.
type Patch struct {
	Status          *Status
	RoomName        *string
	ProviderCallID  *string
	TransferTarget  *string
	EndedAt         *time.Time
	DurationSeconds *int
	Transcript      []events.TranscriptItem
	Usage           json.RawMessage
	ConfigSnapshot  json.RawMessage
	RecordingURL    *string
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.RoomName == nil && p.ProviderCallID == nil &&
		p.TransferTarget == nil && p.EndedAt == nil && p.DurationSeconds == nil &&
		p.Transcript == nil && p.Usage == nil && p.ConfigSnapshot == nil && p.RecordingURL == nil
}

// ApplyTo returns c with the patch applied.
func (p Patch) ApplyTo(c Call) Call {
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.RoomName != nil {
		c.RoomName = *p.RoomName
	}
	if p.ProviderCallID != nil {
		c.ProviderCallID = *p.ProviderCallID
	}
	if p.TransferTarget != nil {
		c.TransferTarget = *p.TransferTarget
	}
	if p.EndedAt != nil {
		t := *p.EndedAt
		c.EndedAt = &t
	}
	if p.DurationSeconds != nil {
		d := *p.DurationSeconds
		c.DurationSeconds = &d
	}
	if p.Transcript != nil {
		c.Transcript = append([]events.TranscriptItem(nil), p.Transcript...)
	}
	if p.Usage != nil {
		c.Usage = p.Usage
	}
	if p.ConfigSnapshot != nil {
		c.ConfigSnapshot = p.ConfigSnapshot
	}
	if p.RecordingURL != nil {
		c.RecordingURL = *p.RecordingURL
	}
	return c
}
