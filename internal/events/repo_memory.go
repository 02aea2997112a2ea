package events

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is a simple in-memory append-only repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) ListByCall(ctx context.Context, callID string, types ...Type) ([]Event, error) {
	want := make(map[Type]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}

	r.mu.Lock()
	out := make([]Event, 0)
	for _, e := range r.events {
		if e.CallID != callID {
			continue
		}
		if len(want) > 0 {
			if _, ok := want[e.Type]; !ok {
				continue
			}
		}
		out = append(out, e)
	}
	r.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// Events returns every stored event in insertion order.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
