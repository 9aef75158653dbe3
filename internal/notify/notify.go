// Package notify keeps the list of user-facing notifications. Notifications
// close themselves after a delay unless told otherwise.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/devilmonastery/gatekeeper/internal/pkg/idgen"
	"github.com/devilmonastery/gatekeeper/internal/pkg/metrics"
)

// DefaultDuration is how long an auto-closing notification stays listed
const DefaultDuration = 3 * time.Second

// Type is the severity of a notification
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Notification is one entry in the list
type Notification struct {
	ID        string
	Type      Type
	Message   string
	AutoClose bool
	Duration  time.Duration
	CreatedAt time.Time
}

// Option adjusts a notification as it is added
type Option func(*Notification)

// WithAutoClose controls whether the notification removes itself
func WithAutoClose(autoClose bool) Option {
	return func(n *Notification) {
		n.AutoClose = autoClose
	}
}

// WithDuration sets the auto-close delay. Non-positive values keep the default.
func WithDuration(d time.Duration) Option {
	return func(n *Notification) {
		if d > 0 {
			n.Duration = d
		}
	}
}

type entry struct {
	n     Notification
	timer *time.Timer
}

// Center holds the current notifications in insertion order
type Center struct {
	mu      sync.Mutex
	entries []entry
	subs    map[int]func(Notification)
	nextSub int
	ids     *idgen.Generator
	log     *slog.Logger
}

// NewCenter creates an empty notification list
func NewCenter() *Center {
	return &Center{
		subs: make(map[int]func(Notification)),
		ids:  idgen.Default(),
		log:  slog.Default().With(slog.String("component", "notify")),
	}
}

func (c *Center) Info(message string, opts ...Option) string {
	return c.add(TypeInfo, message, opts)
}

func (c *Center) Success(message string, opts ...Option) string {
	return c.add(TypeSuccess, message, opts)
}

func (c *Center) Warning(message string, opts ...Option) string {
	return c.add(TypeWarning, message, opts)
}

func (c *Center) Error(message string, opts ...Option) string {
	return c.add(TypeError, message, opts)
}

func (c *Center) add(typ Type, message string, opts []Option) string {
	n := Notification{
		ID:        c.ids.Next(),
		Type:      typ,
		Message:   message,
		AutoClose: true,
		Duration:  DefaultDuration,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&n)
	}

	c.mu.Lock()
	e := entry{n: n}
	if n.AutoClose {
		id := n.ID
		e.timer = time.AfterFunc(n.Duration, func() { c.Remove(id) })
	}
	c.entries = append(c.entries, e)
	subs := make([]func(Notification), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	metrics.NotificationsActive.Inc()
	c.log.Debug("notification added",
		slog.String("id", n.ID),
		slog.String("type", string(typ)),
		slog.Bool("auto_close", n.AutoClose))

	for _, fn := range subs {
		fn(n)
	}
	return n.ID
}

// Remove drops the notification with id and stops its timer. Unknown ids
// are ignored.
func (c *Center) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.n.ID != id {
			continue
		}
		if e.timer != nil {
			e.timer.Stop()
		}
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
		metrics.NotificationsActive.Dec()
		return
	}
}

// ClearAll drops every notification
func (c *Center) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	metrics.NotificationsActive.Sub(float64(len(c.entries)))
	c.entries = nil
}

// List returns the current notifications, oldest first
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Notification, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.n
	}
	return out
}

// Subscribe calls fn for every notification added after it returns. The
// returned function unsubscribes.
func (c *Center) Subscribe(fn func(Notification)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}
