package numbers

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("numbers: not found")

// PhoneNumber is a provisioned inbound number and the agent it routes to.
// TeamNumber, when set, is dialed first; the agent answers if the team does not.
type PhoneNumber struct {
	Number         string    `json:"number"`
	OrganizationID string    `json:"organization_id"`
	AgentID        string    `json:"agent_id"`
	AgentName      string    `json:"agent_name,omitempty"`
	TeamNumber     string    `json:"team_number,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Directory maps a dialed number to its owner.
type Directory interface {
	Lookup(ctx context.Context, number string) (PhoneNumber, error)
}

// Normalize strips whitespace and common punctuation, keeping a leading '+'.
func Normalize(n string) string {
	n = strings.TrimSpace(n)
	var b strings.Builder
	for i, r := range n {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

type MemoryDirectory struct {
	mu      sync.RWMutex
	numbers map[string]PhoneNumber
}

func NewMemoryDirectory(ns ...PhoneNumber) *MemoryDirectory {
	d := &MemoryDirectory{numbers: map[string]PhoneNumber{}}
	for _, n := range ns {
		d.Put(n)
	}
	return d
}

func (d *MemoryDirectory) Put(n PhoneNumber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n.Number = Normalize(n.Number)
	d.numbers[n.Number] = n
}

func (d *MemoryDirectory) Lookup(ctx context.Context, number string) (PhoneNumber, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n, ok := d.numbers[Normalize(number)]
	if !ok {
		return PhoneNumber{}, ErrNotFound
	}
	return n, nil
}
