package calls

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultRecencyWindow bounds the (agent, caller) fallback tier.
const DefaultRecencyWindow = 5 * time.Minute

// Criteria is a partially populated set of identifiers carried by an event.
type Criteria struct {
	RoomName          string `json:"roomName,omitempty"`
	ProviderCallID    string `json:"providerCallId,omitempty"`
	AgentID           string `json:"agentId,omitempty"`
	CallerPhoneNumber string `json:"callerPhoneNumber,omitempty"`
}

// Tier names the identifier that produced a match.
type Tier string

const (
	TierNone           Tier = "none"
	TierRoomName       Tier = "room_name"
	TierProviderCallID Tier = "provider_call_id"
	TierCallerAgent    Tier = "caller_agent"
)

// Resolver finds the single call an event belongs to.
//
// Priority (first match wins, never merged or ranked):
//  1. room name: minted by the agent runtime, cannot collide across live calls
//  2. provider call id: reliable for the first leg, may go stale after a SIP re-bridge
//  3. (agent, caller) newest within the recency window: heuristic for early race
//     events; the same caller redialing the same agent inside the window can be
//     misattributed, and the newest call wins
//
// A tier whose identifier is absent is skipped. A tier whose lookup misses falls
// through to the next one.
type Resolver struct {
	store  Finder
	window time.Duration
	Now    func() time.Time
}

func NewResolver(store Finder, window time.Duration) *Resolver {
	if window <= 0 {
		window = DefaultRecencyWindow
	}
	return &Resolver{store: store, window: window, Now: time.Now}
}

func (r *Resolver) Resolve(ctx context.Context, c Criteria) (Call, Tier, error) {
	if r.store == nil {
		return Call{}, TierNone, errors.New("calls: resolver store not configured")
	}
	c = c.normalized()

	// 1) Room name
	if c.RoomName != "" {
		call, err := r.store.FindByRoomName(ctx, c.RoomName)
		if err == nil {
			return call, TierRoomName, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Call{}, TierNone, err
		}
	}

	// 2) Provider call id
	if c.ProviderCallID != "" {
		call, err := r.store.FindByProviderCallID(ctx, c.ProviderCallID)
		if err == nil {
			return call, TierProviderCallID, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Call{}, TierNone, err
		}
	}

	// 3) Agent + caller within the recency window
	if c.AgentID != "" && c.CallerPhoneNumber != "" {
		now := time.Now
		if r.Now != nil {
			now = r.Now
		}
		since := now().UTC().Add(-r.window)
		call, err := r.store.FindRecentByCaller(ctx, c.AgentID, c.CallerPhoneNumber, since)
		if err == nil {
			return call, TierCallerAgent, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Call{}, TierNone, err
		}
	}

	return Call{}, TierNone, ErrNotFound
}

func (c Criteria) normalized() Criteria {
	return Criteria{
		RoomName:          strings.TrimSpace(c.RoomName),
		ProviderCallID:    strings.TrimSpace(c.ProviderCallID),
		AgentID:           strings.TrimSpace(c.AgentID),
		CallerPhoneNumber: strings.TrimSpace(c.CallerPhoneNumber),
	}
}

// Empty reports whether no identifier is present.
func (c Criteria) Empty() bool {
	n := c.normalized()
	return n.RoomName == "" && n.ProviderCallID == "" && (n.AgentID == "" || n.CallerPhoneNumber == "")
}
