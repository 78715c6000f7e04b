package audit

import (
	"context"
	"errors"
	"sync"
)

// ErrDuplicateEvent mirrors the financial_events primary key.
var ErrDuplicateEvent = errors.New("audit: duplicate event id")

// MemoryRepo keeps the financial event trail in process, for tests and local runs.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	ids    map[string]struct{}
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{ids: map[string]struct{}{}} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[e.ID]; ok {
		return ErrDuplicateEvent
	}
	r.ids[e.ID] = struct{}{}
	r.events = append(r.events, e)
	return nil
}

// Events returns the trail in append order.
func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByActor returns events of eventType recorded for actorID.
func (r *MemoryRepo) ByActor(actorID, eventType string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.ActorID == actorID && e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
