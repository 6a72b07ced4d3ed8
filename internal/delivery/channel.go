// Package delivery holds the per-method notification channels.
//
// IN_APP is the only channel that writes anything. EMAIL, SMS and PUSH are
// registered as Reserved channels: the dispatcher records an attempt for
// them, but nothing leaves the process.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"eventsched/internal/events"
)

var ErrNoChannel = errors.New("no delivery channel for method")

// Delivery is one notification to hand to a channel.
type Delivery struct {
	Event        *events.ScheduledEvent
	Notification *events.ScheduledNotification
	Now          time.Time
}

// Channel delivers notifications for one method.
//
// delivered reports whether the recipient can now see the notification;
// a channel may return delivered=false with a nil error when it only
// accepts the attempt.
type Channel interface {
	Method() events.Method
	Deliver(ctx context.Context, d Delivery) (delivered bool, err error)
}

// Registry maps methods to channels. It is safe for concurrent use.
type Registry struct {
	mu sync.RWMutex
	m  map[events.Method]Channel
}

func NewRegistry(chs ...Channel) *Registry {
	r := &Registry{m: map[events.Method]Channel{}}
	for _, ch := range chs {
		r.Register(ch)
	}
	return r
}

// Register adds or replaces the channel for ch.Method().
func (r *Registry) Register(ch Channel) {
	if ch == nil {
		return
	}
	r.mu.Lock()
	r.m[ch.Method()] = ch
	r.mu.Unlock()
}

func (r *Registry) Get(m events.Method) (Channel, bool) {
	r.mu.RLock()
	ch, ok := r.m[m]
	r.mu.RUnlock()
	return ch, ok
}

// Deliver routes d to the channel registered for method.
func (r *Registry) Deliver(ctx context.Context, method events.Method, d Delivery) (bool, error) {
	ch, ok := r.Get(method)
	if !ok {
		return false, fmt.Errorf("%w %s", ErrNoChannel, method)
	}
	return ch.Deliver(ctx, d)
}

// Methods lists registered methods in a stable order.
func (r *Registry) Methods() []events.Method {
	r.mu.RLock()
	out := make([]events.Method, 0, len(r.m))
	for m := range r.m {
		out = append(out, m)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
