// Package notify delivers transient toasts. Delivery is fire-and-forget:
// each toast is sent on its own goroutine, failures are logged, and nothing
// is reported back to the caller.
package notify

import (
	"context"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a toast stays up when no TTL is configured.
const DefaultTTL = 3 * time.Second

const sendTimeout = 5 * time.Second

// Level is the toast severity.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Toast is one notification.
type Toast struct {
	ID        string        `json:"id"`
	Level     Level         `json:"level"`
	Message   string        `json:"message"`
	TTL       time.Duration `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
}

// Sender delivers a toast to the client.
type Sender interface {
	Send(ctx context.Context, t Toast) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, t Toast) error

func (f SenderFunc) Send(ctx context.Context, t Toast) error { return f(ctx, t) }

// Notifier sends toasts and tracks the ones still showing.
type Notifier struct {
	sender Sender
	ttl    time.Duration

	mu     sync.Mutex
	active []Toast
	timers map[string]*time.Timer
	closed bool
}

// New creates a Notifier. A nil sender only tracks toasts.
func New(sender Sender, ttl time.Duration) *Notifier {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Notifier{sender: sender, ttl: ttl, timers: make(map[string]*time.Timer)}
}

func (n *Notifier) Info(msg string)    { n.Notify(LevelInfo, msg) }
func (n *Notifier) Success(msg string) { n.Notify(LevelSuccess, msg) }
func (n *Notifier) Warning(msg string) { n.Notify(LevelWarning, msg) }
func (n *Notifier) Error(msg string)   { n.Notify(LevelError, msg) }

// Notify shows a toast. It returns immediately.
func (n *Notifier) Notify(level Level, msg string) {
	t := Toast{
		ID:        uuid.New().String(),
		Level:     level,
		Message:   msg,
		TTL:       n.ttl,
		CreatedAt: time.Now(),
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.active = append(n.active, t)
	n.timers[t.ID] = time.AfterFunc(t.TTL, func() { n.dismiss(t.ID) })
	n.mu.Unlock()

	if n.sender == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := n.sender.Send(ctx, t); err != nil {
			log.Printf("notify: sending toast %s: %v", t.ID, err)
		}
	}()
}

func (n *Notifier) dismiss(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.timers, id)
	n.active = slices.DeleteFunc(n.active, func(t Toast) bool { return t.ID == id })
}

// Active returns the toasts whose TTL has not elapsed, oldest first.
func (n *Notifier) Active() []Toast {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.active)
}

// Close stops all dismiss timers and drops later toasts.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	for id, t := range n.timers {
		t.Stop()
		delete(n.timers, id)
	}
	n.active = nil
}
