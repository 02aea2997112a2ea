package calls

import (
	"context"
	"sync"
	"time"

	"voice-agent-platform/internal/latency"
)

// MemoryStore is an in-memory call store for tests and local development.
// It enforces organization isolation on scoped reads and room-name uniqueness.
type MemoryStore struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{calls: map[string]Call{}} }

func (s *MemoryStore) Create(ctx context.Context, c Call) error {
	if c.ID == "" || c.OrganizationID == "" {
		return ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.RoomName != "" && s.roomOwnerLocked(c.RoomName, c.ID) {
		return ErrRoomNameTaken
	}
	s.calls[c.ID] = c
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) GetForOrganization(ctx context.Context, organizationID, id string) (Call, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return Call{}, err
	}
	if organizationID == "" || c.OrganizationID != organizationID {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) FindByRoomName(ctx context.Context, roomName string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if roomName != "" && c.RoomName == roomName {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (s *MemoryStore) FindByProviderCallID(ctx context.Context, providerCallID string) (Call, error) {
	return s.newest(func(c Call) bool {
		return providerCallID != "" && c.ProviderCallID == providerCallID
	})
}

func (s *MemoryStore) FindRecentByCaller(ctx context.Context, agentID, caller string, since time.Time) (Call, error) {
	return s.newest(func(c Call) bool {
		return agentID != "" && caller != "" &&
			c.AgentID == agentID && c.CallerPhoneNumber == caller &&
			!c.CreatedAt.Before(since)
	})
}

func (s *MemoryStore) Update(ctx context.Context, id string, p Patch, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return ErrNotFound
	}
	if p.RoomName != nil && *p.RoomName != "" && s.roomOwnerLocked(*p.RoomName, id) {
		return ErrRoomNameTaken
	}
	c = p.ApplyTo(c)
	c.UpdatedAt = now.UTC()
	s.calls[id] = c
	return nil
}

func (s *MemoryStore) SaveLatencyStats(ctx context.Context, id string, stats *latency.ByCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.calls[id]
	if !ok {
		return ErrNotFound
	}
	c.LatencyStats = stats
	s.calls[id] = c
	return nil
}

func (s *MemoryStore) newest(match func(Call) bool) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  Call
		found bool
	)
	for _, c := range s.calls {
		if !match(c) {
			continue
		}
		if !found || c.CreatedAt.After(best.CreatedAt) {
			best, found = c, true
		}
	}
	if !found {
		return Call{}, ErrNotFound
	}
	return best, nil
}

func (s *MemoryStore) roomOwnerLocked(roomName, exceptID string) bool {
	for id, c := range s.calls {
		if id != exceptID && c.RoomName == roomName {
			return true
		}
	}
	return false
}
