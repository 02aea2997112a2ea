package latency

import (
	"context"
	"errors"

	"voice-agent-platform/internal/events"
)

var ErrInvalidRequest = errors.New("latency: invalid request")

// EventSource reads a call's event log.
type EventSource interface {
	ListByCall(ctx context.Context, callID string, types ...events.Type) ([]events.Event, error)
}

// StatsWriter caches computed stats on the call record. The cached value is
// derived data; the event log stays authoritative.
type StatsWriter interface {
	SaveLatencyStats(ctx context.Context, callID string, stats *ByCategory) error
}

// Aggregator derives latency statistics from the event log on demand.
type Aggregator struct {
	source EventSource
	writer StatsWriter
}

func NewAggregator(source EventSource, writer StatsWriter) *Aggregator {
	return &Aggregator{source: source, writer: writer}
}

// ComputeStats returns nil (and no error) when the call has no qualifying events.
func (a *Aggregator) ComputeStats(ctx context.Context, callID string) (*ByCategory, error) {
	if callID == "" {
		return nil, ErrInvalidRequest
	}
	if a.source == nil {
		return nil, errors.New("latency: event source not configured")
	}
	evs, err := a.source.ListByCall(ctx, callID, events.TypeMetricsCollected, events.TypeTotalLatency)
	if err != nil {
		return nil, err
	}
	return Collect(evs).Build(), nil
}

// Refresh recomputes stats and caches them on the call record.
func (a *Aggregator) Refresh(ctx context.Context, callID string) (*ByCategory, error) {
	stats, err := a.ComputeStats(ctx, callID)
	if err != nil {
		return nil, err
	}
	if stats == nil || a.writer == nil {
		return stats, nil
	}
	if err := a.writer.SaveLatencyStats(ctx, callID, stats); err != nil {
		return stats, err
	}
	return stats, nil
}
