package client

import (
	"log/slog"
	"sync"
	"time"

	"github.com/devilmonastery/gatekeeper/internal/pkg/metrics"
)

// LogoutEvent is published when the API rejects a request as unauthenticated
// and the stored tokens have been cleared.
type LogoutEvent struct {
	Method string
	Path   string
	At     time.Time
}

// Events is the observer list for logout-required signals. The shell
// subscribes once at startup and reacts, typically by asking for a new login.
type Events struct {
	mu     sync.Mutex
	nextID int
	subs   []subscription
	log    *slog.Logger
}

type subscription struct {
	id int
	fn func(LogoutEvent)
}

// NewEvents creates an empty observer list
func NewEvents() *Events {
	return &Events{
		log: slog.Default().With(slog.String("component", "auth-events")),
	}
}

// Subscribe registers fn and returns a function that removes it
func (e *Events) Subscribe(fn func(LogoutEvent)) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.subs = append(e.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			for i, s := range e.subs {
				if s.id == id {
					e.subs = append(e.subs[:i], e.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish delivers ev to every subscriber in subscription order, on the
// calling goroutine. Subscribers may subscribe or cancel from inside fn.
func (e *Events) Publish(ev LogoutEvent) {
	e.mu.Lock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	metrics.LogoutSignals.Inc()
	e.log.Info("logout required",
		slog.String("method", ev.Method),
		slog.String("path", ev.Path),
		slog.Int("subscribers", len(subs)))

	for _, s := range subs {
		s.fn(ev)
	}
}
