package calls

import (
	"context"
	"errors"
	"time"

	"voice-agent-platform/internal/latency"
)

var (
	ErrNotFound        = errors.New("calls: not found")
	ErrRoomNameTaken   = errors.New("calls: room name already owned by another call")
	ErrInvalidArgument = errors.New("calls: invalid argument")
)

// Finder is the read side used by the resolver.
type Finder interface {
	FindByRoomName(ctx context.Context, roomName string) (Call, error)
	FindByProviderCallID(ctx context.Context, providerCallID string) (Call, error)
	// FindRecentByCaller returns the newest call for (agent, caller) created at or after since.
	FindRecentByCaller(ctx context.Context, agentID, caller string, since time.Time) (Call, error)
}

// Store is the persistence contract for call records.
//
// Lookups that miss return ErrNotFound. Update applies only the non-nil fields of
// the patch in a single statement keyed by id.
type Store interface {
	Finder

	Create(ctx context.Context, c Call) error
	Get(ctx context.Context, id string) (Call, error)
	GetForOrganization(ctx context.Context, organizationID, id string) (Call, error)
	Update(ctx context.Context, id string, p Patch, now time.Time) error

	SaveLatencyStats(ctx context.Context, id string, stats *latency.ByCategory) error
}
