package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/latency"
	"voice-agent-platform/internal/metrics"
	"voice-agent-platform/internal/notify"
	"voice-agent-platform/pkg/logger"
)

// ErrRecordFailed wraps event log failures. Webhook surfaces map it to 500.
var ErrRecordFailed = errors.New("lifecycle: event record failed")

// LatencyRefresher recomputes and caches latency stats for a call.
type LatencyRefresher interface {
	Refresh(ctx context.Context, callID string) (*latency.ByCategory, error)
}

// Reconciler drives every call mutation: append the raw event, apply the
// transition, persist the patch, then run side effects.
//
// Ordering guarantees:
//   - The event is appended before the call record is touched. If the append
//     fails nothing else happens and the caller gets ErrRecordFailed.
//   - Call record, latency and publish failures are logged only. The event log
//     is the source of truth and the record can be rebuilt from it.
//
// There is no per-call lock. Patches touch only the fields a transition sets,
// so concurrent events racing on different fields do not clobber each other;
// a race on status is last-writer-wins.
type Reconciler struct {
	Recorder  *events.Recorder
	Store     calls.Store
	Resolver  *calls.Resolver
	Latency   LatencyRefresher
	Publisher notify.Publisher
	Metrics   *metrics.Metrics

	Now func() time.Time
}

// Result is returned for every recorded event, including ones that did not
// change the call.
type Result struct {
	Event      events.Event
	Transition Transition
	// Applied is false when the record update was skipped or failed.
	Applied bool
}

// Resolve wraps the resolver and counts which tier matched.
func (r *Reconciler) Resolve(ctx context.Context, c calls.Criteria) (calls.Call, calls.Tier, error) {
	if r.Resolver == nil {
		return calls.Call{}, calls.TierNone, errors.New("lifecycle: resolver not configured")
	}
	call, tier, err := r.Resolver.Resolve(ctx, c)
	if err != nil && !errors.Is(err, calls.ErrNotFound) {
		return call, tier, err
	}
	if r.Metrics != nil {
		r.Metrics.Resolutions.WithLabelValues(string(tier)).Inc()
	}
	return call, tier, err
}

// Handle records the event for call and reconciles the call record.
func (r *Reconciler) Handle(ctx context.Context, call calls.Call, t events.Type, data json.RawMessage, occurredAt time.Time) (Result, error) {
	log := logger.WithCall(logger.From(ctx), call.ID, call.OrganizationID).With("event_type", string(t))
	now := r.now()

	start := time.Now()
	ev, err := r.Recorder.Record(ctx, call.ID, t, data, occurredAt)
	r.observe("event_append", start)
	if err != nil {
		if errors.Is(err, events.ErrUnknownType) || errors.Is(err, events.ErrInvalidEvent) {
			return Result{}, err
		}
		if r.Metrics != nil {
			r.Metrics.EventRecordFailures.WithLabelValues(string(t)).Inc()
		}
		log.Error("event append failed", "err", err)
		return Result{}, fmt.Errorf("%w: %v", ErrRecordFailed, err)
	}
	if r.Metrics != nil {
		r.Metrics.EventsRecorded.WithLabelValues(string(t)).Inc()
	}
	res := Result{Event: ev}

	tr, err := Apply(call, ev, now)
	if err != nil {
		// The raw event is kept; a malformed payload only skips the mutation.
		log.Warn("event payload not applied", "err", err)
		res.Transition = Transition{Before: call, After: call}
		return res, nil
	}
	res.Transition = tr

	if !tr.Patch.Empty() {
		start = time.Now()
		err = r.Store.Update(ctx, call.ID, tr.Patch, now)
		r.observe("call_update", start)
		if err != nil {
			log.Error("call update failed", "err", err)
		} else {
			res.Applied = true
		}
	}
	if tr.Rekeyed {
		log.Info("provider call id re-keyed", "from", call.ProviderCallID, "to", tr.After.ProviderCallID)
	}

	if tr.RefreshLatency {
		r.refreshLatency(ctx, log, call.ID)
	}
	if res.Applied && tr.StatusChanged() {
		r.publish(ctx, log, tr, t, now)
	}
	return res, nil
}

func (r *Reconciler) refreshLatency(ctx context.Context, log *slog.Logger, callID string) {
	if r.Latency == nil {
		return
	}
	start := time.Now()
	_, err := r.Latency.Refresh(ctx, callID)
	r.observe("latency_refresh", start)
	if err != nil {
		if r.Metrics != nil {
			r.Metrics.LatencyFailures.Inc()
		}
		log.Warn("latency refresh failed", "err", err)
	}
}

func (r *Reconciler) publish(ctx context.Context, log *slog.Logger, tr Transition, t events.Type, now time.Time) {
	from, to := string(tr.Before.Status), string(tr.After.Status)
	if r.Metrics != nil {
		r.Metrics.StatusTransitions.WithLabelValues(from, to).Inc()
	}
	log.Info("call status changed", "from", from, "to", to)
	if r.Publisher == nil {
		return
	}
	err := r.Publisher.Publish(ctx, notify.Change{
		CallID:         tr.After.ID,
		OrganizationID: tr.After.OrganizationID,
		From:           from,
		To:             to,
		EventType:      string(t),
		At:             now,
	})
	if err != nil {
		if r.Metrics != nil {
			r.Metrics.LifecyclePublishErrs.Inc()
		}
		log.Warn("lifecycle publish failed", "err", err)
	}
}

func (r *Reconciler) observe(op string, start time.Time) {
	if r.Metrics != nil {
		r.Metrics.PersistenceDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}
