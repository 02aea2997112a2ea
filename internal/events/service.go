package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for call events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error

	// ListByCall returns the events of a call ordered by OccurredAt ascending.
	// When types is non-empty only those types are returned.
	ListByCall(ctx context.Context, callID string, types ...Type) ([]Event, error)
}

var (
	ErrInvalidEvent = errors.New("events: invalid event")
	ErrUnknownType  = errors.New("events: unknown event type")
)

// Recorder appends typed events to the per-call log.
//
// Payload shape is not validated beyond being JSON; the runtime keeps adding
// telemetry shapes and the log must accept them. Storage failures are always
// returned: a lost event corrupts reconciliation and latency statistics.
type Recorder struct {
	repo  Repository
	clock func() time.Time
}

func NewRecorder(repo Repository) *Recorder {
	return &Recorder{repo: repo, clock: time.Now}
}

// WithClock overrides the recorder clock (tests).
func (r *Recorder) WithClock(now func() time.Time) *Recorder {
	r.clock = now
	return r
}

// Record appends an event. A zero occurredAt defaults to now.
func (r *Recorder) Record(ctx context.Context, callID string, t Type, data json.RawMessage, occurredAt time.Time) (Event, error) {
	if r.repo == nil {
		return Event{}, errors.New("events: repository not configured")
	}
	if callID == "" {
		return Event{}, fmt.Errorf("%w: call_id required", ErrInvalidEvent)
	}
	if !t.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage(`{}`)
	} else if !json.Valid(data) {
		return Event{}, fmt.Errorf("%w: data is not valid json", ErrInvalidEvent)
	}

	now := r.clock().UTC()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	e := Event{
		ID:         uuid.NewString(),
		CallID:     callID,
		Type:       t,
		OccurredAt: occurredAt.UTC(),
		Data:       data,
		CreatedAt:  now,
	}
	if err := r.repo.Append(ctx, e); err != nil {
		return Event{}, fmt.Errorf("events: append %s: %w", t, err)
	}
	return e, nil
}

// List returns the call's timeline.
func (r *Recorder) List(ctx context.Context, callID string, types ...Type) ([]Event, error) {
	if r.repo == nil {
		return nil, errors.New("events: repository not configured")
	}
	if callID == "" {
		return nil, fmt.Errorf("%w: call_id required", ErrInvalidEvent)
	}
	return r.repo.ListByCall(ctx, callID, types...)
}
