// Package dispatch evaluates active events once per tick: it fires the
// per-method notifications of due events and completes past events,
// spawning the next occurrence of recurring ones.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"eventsched/internal/delivery"
	"eventsched/internal/eventbus"
	"eventsched/internal/events"
	"eventsched/internal/storage"
	logx "eventsched/pkg/logx"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

type Config struct {
	// Location is used for events without a valid timezone of their own.
	Location *time.Location
	// RatePerSec caps channel deliveries per second; <= 0 means unlimited.
	RatePerSec int
	// MaxRetries is stamped on every ScheduledNotification. Nothing retries.
	MaxRetries int
}

// Report summarizes one pass.
type Report struct {
	Evaluated        int
	Notified         int
	Deliveries       int
	DeliveryFailures int
	Completed        int
	Spawned          int
	Errors           int
	Took             time.Duration
}

type Dispatcher struct {
	repo     *events.Repo
	channels *delivery.Registry
	bus      eventbus.Bus
	log      logx.Logger
	newID    func() string

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
}

func New(cfg Config, repo *events.Repo, channels *delivery.Registry, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if channels == nil {
		channels = delivery.NewRegistry()
	}
	d := &Dispatcher{
		repo:     repo,
		channels: channels,
		bus:      bus,
		log:      log.With(logx.String("comp", "dispatch")),
		newID:    uuid.NewString,
	}
	d.applyLocked(cfg)
	return d
}

// Apply swaps the configuration; the next pass picks it up.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	d.cfg = cfg
	if cfg.RatePerSec <= 0 {
		d.limiter = rate.NewLimiter(rate.Inf, 1)
		return
	}
	d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (d *Dispatcher) snapshot() (Config, *rate.Limiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, d.limiter
}

// Run evaluates every ACTIVE event against now.
//
// Store failures on one event are logged and counted; the pass moves on.
// Only a failure to list active events ends the pass early.
func (d *Dispatcher) Run(ctx context.Context, now time.Time) Report {
	start := time.Now()
	var rep Report
	cfg, limiter := d.snapshot()

	active, err := d.repo.ActiveEvents(ctx)
	if err != nil {
		d.log.Error("list active events failed", logx.Err(err))
		rep.Errors++
		rep.Took = time.Since(start)
		return rep
	}

	for i := range active {
		if ctx.Err() != nil {
			break
		}
		e := &active[i]
		rep.Evaluated++
		if err := d.evaluate(ctx, e, now, cfg, limiter, &rep); err != nil {
			rep.Errors++
			d.log.Error("event skipped", logx.String("event_id", e.ID), logx.Err(err))
		}
	}

	rep.Took = time.Since(start)
	if rep.Notified > 0 || rep.Completed > 0 || rep.Errors > 0 {
		d.log.Info("dispatch pass",
			logx.Int("evaluated", rep.Evaluated),
			logx.Int("notified", rep.Notified),
			logx.Int("deliveries", rep.Deliveries),
			logx.Int("delivery_failures", rep.DeliveryFailures),
			logx.Int("completed", rep.Completed),
			logx.Int("spawned", rep.Spawned),
			logx.Int("errors", rep.Errors),
			logx.Duration("took", rep.Took),
		)
	}
	return rep
}

// evaluate runs the notify gate and the completion check for one event.
// Both run in the same pass; an overdue event can be notified and completed at once.
func (d *Dispatcher) evaluate(ctx context.Context, e *events.ScheduledEvent, now time.Time, cfg Config, limiter *rate.Limiter, rep *Report) error {
	at := e.DateTime(cfg.Location)
	notifyAt := e.NotifyAt(cfg.Location)

	if e.LastNotifiedAt == nil && !now.Before(notifyAt) {
		// A record that cannot be stored leaves the gate open for the next pass.
		if err := d.notify(ctx, e, now, notifyAt, cfg, limiter, rep); err != nil {
			return err
		}
		// the gate is written even when deliveries failed
		if err := d.repo.UpdateEvent(ctx, e.ID, storage.Patch{"lastNotifiedAt": now}); err != nil {
			return fmt.Errorf("set notify gate: %w", err)
		}
		e.LastNotifiedAt = &now
		rep.Notified++
		d.publish(eventbus.EventNotified, e.ID)
	}

	if now.After(at) {
		if err := d.repo.UpdateEvent(ctx, e.ID, storage.Patch{
			"status":      events.StatusCompleted,
			"completedAt": now,
		}); err != nil {
			return fmt.Errorf("complete event: %w", err)
		}
		e.Status = events.StatusCompleted
		e.CompletedAt = &now
		rep.Completed++
		d.publish(eventbus.EventCompleted, e.ID)

		if e.IsRecurring {
			d.spawn(ctx, e, now, rep)
		}
	}
	return nil
}

// notify records and delivers one notification per method. It stops at the
// first record that cannot be created; methods handled before that get a
// second record when the event is retried.
func (d *Dispatcher) notify(ctx context.Context, e *events.ScheduledEvent, now, notifyAt time.Time, cfg Config, limiter *rate.Limiter, rep *Report) error {
	recipient := e.Recipient()
	msg := events.Message(e, cfg.Location)

	for _, m := range e.NotificationMethods {
		sn := &events.ScheduledNotification{
			ID:               d.newID(),
			ScheduledEventID: e.ID,
			UserID:           recipient,
			Method:           m,
			Title:            e.Title,
			Message:          msg,
			ScheduledFor:     notifyAt,
			MaxRetries:       cfg.MaxRetries,
			CreatedAt:        now,
		}
		if err := d.repo.CreateScheduled(ctx, sn); err != nil {
			return fmt.Errorf("create scheduled notification (%s): %w", m, err)
		}

		delivered, err := d.deliver(ctx, limiter, m, delivery.Delivery{Event: e, Notification: sn, Now: now})
		rep.Deliveries++

		patch := storage.Patch{}
		if err != nil {
			rep.DeliveryFailures++
			patch["error"] = err.Error()
			d.log.Warn("delivery failed",
				logx.String("event_id", e.ID), logx.String("method", string(m)), logx.Err(err))
		} else {
			patch["isSent"] = true
			patch["sentAt"] = now
			if delivered {
				patch["isDelivered"] = true
				patch["deliveredAt"] = now
			}
		}
		if err := d.repo.UpdateScheduled(ctx, sn.ID, patch); err != nil {
			rep.Errors++
			d.log.Error("update scheduled notification failed",
				logx.String("event_id", e.ID), logx.String("notification_id", sn.ID), logx.Err(err))
		}
	}
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, limiter *rate.Limiter, m events.Method, del delivery.Delivery) (bool, error) {
	if err := limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}
	return d.channels.Deliver(ctx, m, del)
}

func (d *Dispatcher) spawn(ctx context.Context, parent *events.ScheduledEvent, now time.Time, rep *Report) {
	next, ok, err := events.Successor(parent, now, d.newID())
	if err != nil {
		rep.Errors++
		d.log.Error("recurrence failed; no successor", logx.String("event_id", parent.ID), logx.Err(err))
		return
	}
	if !ok {
		d.log.Debug("recurrence ended", logx.String("event_id", parent.ID))
		return
	}
	if err := d.repo.CreateEvent(ctx, next); err != nil {
		rep.Errors++
		d.log.Error("create successor failed", logx.String("event_id", parent.ID), logx.Err(err))
		return
	}
	rep.Spawned++
	d.log.Debug("successor created",
		logx.String("event_id", parent.ID),
		logx.String("successor_id", next.ID),
		logx.String("date", next.ScheduledDate.String()),
	)
	d.publish(eventbus.EventSpawned, next.ID)
}

func (d *Dispatcher) publish(typ, id string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Data: id})
}
