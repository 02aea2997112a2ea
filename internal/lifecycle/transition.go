package lifecycle

import (
	"fmt"
	"math"
	"time"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
)

// Transition is the outcome of applying one event to a call.
type Transition struct {
	Before calls.Call
	After  calls.Call
	Patch  calls.Patch

	// Completed is set when this event moved the call into completed.
	Completed bool
	// Rekeyed is set when the provider call id changed (SIP re-bridge).
	Rekeyed bool
	// RefreshLatency asks the caller to recompute latency stats.
	RefreshLatency bool
}

func (t Transition) StatusChanged() bool { return t.Before.Status != t.After.Status }

// Apply is the single state machine over Call.Status. It is pure: the caller
// persists Patch and performs side effects.
//
//	incoming            --transfer_initiated-->   transferred_to_team
//	transferred_to_team --transfer_reconnected--> connected_to_agent
//	any non-terminal    --session_complete|transcript|dial_completed--> completed
//
// completed and failed are never left. Late transcripts still merge.
func Apply(c calls.Call, e events.Event, now time.Time) (Transition, error) {
	t := Transition{Before: c, After: c}
	p, err := events.Decode(e)
	if err != nil {
		return t, err
	}
	now = now.UTC()

	var patch calls.Patch
	switch v := p.(type) {
	case events.RoomConnected:
		if v.RoomName != "" && v.RoomName != c.RoomName {
			patch.RoomName = ptr(v.RoomName)
		}
		if v.ProviderCallID != "" && v.ProviderCallID != c.ProviderCallID {
			patch.ProviderCallID = ptr(v.ProviderCallID)
			t.Rekeyed = c.ProviderCallID != ""
		}

	case events.TransferInitiated:
		if !c.Status.Terminal() {
			patch.Status = ptr(calls.StatusTransferredToTeam)
			if v.Target != "" {
				patch.TransferTarget = ptr(v.Target)
			}
		}

	case events.TransferOutcome:
		if e.Type == events.TypeTransferReconnected && !c.Status.Terminal() {
			patch.Status = ptr(calls.StatusConnectedToAgent)
		}

	case events.SessionComplete:
		switch c.Status {
		case calls.StatusFailed:
		case calls.StatusCompleted:
			// A repeated session_complete may carry the authoritative duration.
			if v.DurationMs != nil {
				patch.DurationSeconds = ptr(msToSeconds(*v.DurationMs))
			}
		default:
			complete(&patch, c, now, v.DurationMs)
			t.Completed = true
		}
		if len(v.Usage) > 0 {
			patch.Usage = v.Usage
		}
		if len(v.Config) > 0 {
			patch.ConfigSnapshot = v.Config
		}
		if v.RecordingURL != "" {
			patch.RecordingURL = ptr(v.RecordingURL)
		}
		t.RefreshLatency = true

	case events.Transcript:
		if merged, changed := mergeTranscript(c.Transcript, v.Items); changed {
			patch.Transcript = merged
		}
		if !c.Status.Terminal() {
			complete(&patch, c, now, v.DurationMs)
			t.Completed = true
			t.RefreshLatency = true
		}

	case events.DialCompleted:
		if !c.Status.Terminal() {
			patch.Status = ptr(calls.StatusCompleted)
			patch.EndedAt = ptr(now)
			if v.DurationSeconds > 0 {
				patch.DurationSeconds = ptr(v.DurationSeconds)
			} else {
				patch.DurationSeconds = ptr(elapsedSeconds(c.CreatedAt, now))
			}
			t.Completed = true
		}

	case events.Metrics, events.TotalLatency, events.Passthrough:
		// Logged only.

	default:
		return t, fmt.Errorf("lifecycle: unhandled payload %T for %s", p, e.Type)
	}

	t.Patch = patch
	t.After = patch.ApplyTo(c)
	return t, nil
}

func complete(p *calls.Patch, c calls.Call, now time.Time, durationMs *float64) {
	p.Status = ptr(calls.StatusCompleted)
	p.EndedAt = ptr(now)
	if durationMs != nil {
		p.DurationSeconds = ptr(msToSeconds(*durationMs))
		return
	}
	p.DurationSeconds = ptr(elapsedSeconds(c.CreatedAt, now))
}

// mergeTranscript appends items not already present. Redelivered items are
// dropped so replaying a transcript event is a no-op.
func mergeTranscript(existing, incoming []events.TranscriptItem) ([]events.TranscriptItem, bool) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, it := range existing {
		seen[it.Key()] = struct{}{}
	}
	out := append([]events.TranscriptItem(nil), existing...)
	changed := false
	for _, it := range incoming {
		k := it.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
		changed = true
	}
	return out, changed
}

func msToSeconds(ms float64) int {
	if ms <= 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return 0
	}
	return int(math.Round(ms / 1000))
}

func elapsedSeconds(from, to time.Time) int {
	if from.IsZero() || to.Before(from) {
		return 0
	}
	return int(math.Round(to.Sub(from).Seconds()))
}

func ptr[T any](v T) *T { return &v }
