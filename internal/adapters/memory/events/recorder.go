package events

import (
	"context"
	"sync"

	"github.com/conference-site/schedule-api/internal/ports/out/events"
)

// Recorder keeps published events in memory, in publish order.
// It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	// Err, when set, is returned from every Publish call after the event is recorded.
	Err error
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(ctx context.Context, e events.Event) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.Err
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// OfType filters Events by type.
func (r *Recorder) OfType(t events.Type) []events.Event {
	out := make([]events.Event, 0)
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
