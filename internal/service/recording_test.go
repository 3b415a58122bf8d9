package service

import (
	"context"
	"sync"

	"github.com/iliyamo/dispatch-backoffice/internal/queue"
)

// RecordingPublisher keeps events in memory.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []queue.ActivityEvent
}

func (r *RecordingPublisher) Publish(_ context.Context, ev queue.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything published so far.
func (r *RecordingPublisher) Events() []queue.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]queue.ActivityEvent(nil), r.events...)
}

// Types lists the event types published so far, in order.
func (r *RecordingPublisher) Types() []string {
	evs := r.Events()
	out := make([]string, len(evs))
	for i, ev := range evs {
		out[i] = ev.Type
	}
	return out
}
