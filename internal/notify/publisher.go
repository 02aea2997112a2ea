package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LifecycleStream is the Redis stream dashboards tail for live call status.
const LifecycleStream = "calls:lifecycle"

const defaultMaxLen = 10000

// Change is one call status transition.
type Change struct {
	CallID         string    `json:"call_id"`
	OrganizationID string    `json:"organization_id"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	EventType      string    `json:"event_type"`
	At             time.Time `json:"at"`
}

// Publisher fans out lifecycle changes. Delivery is best-effort: callers log
// failures and move on, the event log stays authoritative.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Noop is used when Redis is not configured.
type Noop struct{}

func (Noop) Publish(context.Context, Change) error { return nil }

type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisPublisher appends changes to a capped Redis stream.
type RedisPublisher struct {
	rdb    streamAdder
	stream string
	maxLen int64
}

func NewRedisPublisher(rdb redis.Cmdable, maxLen int64) *RedisPublisher {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &RedisPublisher{rdb: rdb, stream: LifecycleStream, maxLen: maxLen}
}

func (p *RedisPublisher) Publish(ctx context.Context, c Change) error {
	if p.rdb == nil {
		return errors.New("notify: redis client is nil")
	}
	if c.CallID == "" {
		return errors.New("notify: call_id required")
	}
	if c.At.IsZero() {
		c.At = time.Now()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("notify: marshal change: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"call_id":         c.CallID,
			"organization_id": c.OrganizationID,
			"from":            c.From,
			"to":              c.To,
			"event_type":      c.EventType,
			"at":              c.At.UTC().UnixMilli(),
			"event_data":      string(payload),
		},
	}
	if _, err := p.rdb.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("notify: xadd %s: %w", p.stream, err)
	}
	return nil
}
