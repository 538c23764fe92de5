// Package reminder coordinates a single reminder per bill against the
// notification service. The scheduler never persists; callers store the
// returned bill.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"billminder/internal/core"
	"billminder/internal/metrics"
	"billminder/internal/notify"
)

// State is where a bill's reminder ended up after an operation.
type State string

const (
	StateNoReminder           State = "no_reminder"
	StatePendingAuthorization State = "pending_authorization"
	StateScheduled            State = "scheduled"
	StateDenied               State = "denied"
	StateFailed               State = "failed"
	StateStale                State = "stale"
)

type EffectKind string

const (
	EffectCancel EffectKind = "cancel"
	EffectSubmit EffectKind = "submit"
)

// Effect is one call made against the notification service.
type Effect struct {
	Kind           EffectKind
	NotificationID string
	Request        *notify.Request
}

// Outcome is the result of Schedule. Bill is always usable: on denial or
// failure its reminder fields are empty.
type Outcome struct {
	Bill    core.Bill
	State   State
	Effects []Effect
	Err     error

	// Generation identifies the Schedule call; see Scheduler.Current.
	Generation uint64
}

// Cancelled reports whether the outcome already cancelled the notification.
func (o Outcome) Cancelled(notificationID string) bool {
	for _, e := range o.Effects {
		if e.Kind == EffectCancel && e.NotificationID == notificationID {
			return true
		}
	}
	return false
}

// AuthorizationNeeded reports whether the user has to grant notification
// permission before a reminder can be set.
func (o Outcome) AuthorizationNeeded() bool {
	return o.State == StateDenied
}

// Scheduler sets, replaces and clears bill reminders.
//
// Each Schedule call takes a new generation, unique across all bills. A call
// that finishes after a newer one started for the same bill reports StateStale
// and cancels whatever it submitted. Callers that store an outcome later must
// check Current again at the moment they store it.
//
// Only bills with a schedule in flight or not yet stored keep an entry in the
// generation table; Release and Forget drop it.
type Scheduler struct {
	service notify.Service
	metrics *metrics.Metrics
	newID   func() string

	mu          sync.Mutex
	seq         uint64
	generations map[uuid.UUID]uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records reminder outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithIDGenerator replaces the notification identifier source.
func WithIDGenerator(gen func() string) Option {
	return func(s *Scheduler) { s.newID = gen }
}

// New creates a scheduler submitting to the given notification service.
func New(service notify.Service, opts ...Option) *Scheduler {
	s := &Scheduler{
		service:     service,
		newID:       func() string { return uuid.NewString() },
		generations: make(map[uuid.UUID]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Remove cancels the bill's pending notification, if any, and clears both
// reminder fields. Without a notification handle nothing is cancelled.
func (s *Scheduler) Remove(ctx context.Context, bill core.Bill) (core.Bill, []Effect) {
	bill = bill.Clone()
	var effects []Effect
	if bill.NotificationID != nil {
		id := *bill.NotificationID
		if err := s.service.Cancel(ctx, id); err != nil {
			slog.WarnContext(ctx, "Failed to cancel notification",
				"bill_id", bill.ID,
				"notification_id", id,
				"error", err)
		}
		effects = append(effects, Effect{Kind: EffectCancel, NotificationID: id})
	}
	bill.ClearReminder()
	return bill, effects
}

// Schedule replaces the bill's reminder with one firing at the given time.
// The previous reminder is always cleared first, so at most one handle is live.
func (s *Scheduler) Schedule(ctx context.Context, bill core.Bill, at time.Time) Outcome {
	gen := s.begin(bill.ID)

	updated, effects := s.Remove(ctx, bill)
	out := Outcome{Bill: updated, State: StatePendingAuthorization, Effects: effects, Generation: gen}

	if !s.authorize(ctx) {
		out.State = StateDenied
		slog.InfoContext(ctx, "Reminder not scheduled, notifications not authorized", "bill_id", bill.ID)
		return s.finish(ctx, gen, out)
	}

	req := notify.Request{
		ID:        s.newID(),
		TriggerAt: at.Truncate(time.Second),
		Title:     core.ReminderTitle,
		Body:      updated.ReminderBody(),
		Category:  core.NotificationCategoryID,
	}
	if err := s.service.Submit(ctx, req); err != nil {
		slog.ErrorContext(ctx, "Failed to submit reminder",
			"bill_id", bill.ID,
			"notification_id", req.ID,
			"error", err)
		out.State = StateFailed
		out.Err = fmt.Errorf("submit reminder: %w", err)
		return s.finish(ctx, gen, out)
	}
	out.Effects = append(out.Effects, Effect{Kind: EffectSubmit, NotificationID: req.ID, Request: &req})

	remindAt := at
	notificationID := req.ID
	out.Bill.RemindDate = &remindAt
	out.Bill.NotificationID = &notificationID
	out.State = StateScheduled

	return s.finish(ctx, gen, out)
}

// Current reports whether gen is still the newest Schedule call for the bill.
func (s *Scheduler) Current(id uuid.UUID, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[id] == gen
}

// Release drops the bill's entry once the outcome of gen has been stored.
// It does nothing if a newer call has started since.
func (s *Scheduler) Release(id uuid.UUID, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generations[id] == gen {
		delete(s.generations, id)
	}
}

// Forget makes every in-flight Schedule call for the bill stale.
func (s *Scheduler) Forget(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.generations, id)
}

// Supersede cancels the notification the outcome submitted and marks it
// stale. The returned bill carries no reminder.
func (s *Scheduler) Supersede(ctx context.Context, out Outcome) Outcome {
	if out.Bill.NotificationID != nil {
		id := *out.Bill.NotificationID
		if err := s.service.Cancel(ctx, id); err != nil {
			slog.WarnContext(ctx, "Failed to cancel superseded notification",
				"bill_id", out.Bill.ID,
				"notification_id", id,
				"error", err)
		}
		out.Effects = append(out.Effects, Effect{Kind: EffectCancel, NotificationID: id})
	}
	out.Bill.ClearReminder()
	out.State = StateStale
	slog.InfoContext(ctx, "Reminder superseded by a newer request", "bill_id", out.Bill.ID)
	return out
}

func (s *Scheduler) authorize(ctx context.Context) bool {
	status, err := s.service.AuthorizationStatus(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Failed to read notification authorization", "error", err)
		return false
	}
	if status != notify.StatusNotDetermined {
		return notify.Granted(status)
	}

	granted, err := s.service.RequestAuthorization(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Notification authorization request failed", "error", err)
		return false
	}
	return granted
}

func (s *Scheduler) begin(id uuid.UUID) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.generations[id] = s.seq
	return s.seq
}

func (s *Scheduler) finish(ctx context.Context, gen uint64, out Outcome) Outcome {
	if !s.Current(out.Bill.ID, gen) {
		out = s.Supersede(ctx, out)
	}

	s.metrics.ReminderOutcome(string(out.State))
	if out.State == StateScheduled {
		slog.InfoContext(ctx, "Reminder scheduled",
			"bill_id", out.Bill.ID,
			"notification_id", *out.Bill.NotificationID,
			"remind_at", *out.Bill.RemindDate)
	}
	return out
}
