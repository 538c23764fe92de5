package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"billminder/internal/bills"
	"billminder/internal/metrics"
	"billminder/internal/notify"
	"billminder/internal/reminder"
)

const DefaultSnoozeDuration = time.Hour

// Router turns user actions on delivered reminders into bill updates.
type Router struct {
	bills   *BillService
	metrics *metrics.Metrics
	snooze  time.Duration
	now     func() time.Time
}

type RouterOption func(*Router)

func WithSnooze(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.snooze = d
		}
	}
}

func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

func WithRouterMetrics(m *metrics.Metrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

func NewRouter(svc *BillService, opts ...RouterOption) *Router {
	r := &Router{
		bills:  svc,
		snooze: DefaultSnoozeDuration,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleResponse applies the action and calls done exactly once, whatever
// the outcome.
func (r *Router) HandleResponse(ctx context.Context, resp notify.Response, done func()) {
	defer done()

	result := r.handle(ctx, resp)
	r.metrics.Response(resp.Action, result)
}

func (r *Router) handle(ctx context.Context, resp notify.Response) string {
	bill, err := r.bills.GetBillByNotificationID(ctx, resp.NotificationID)
	if err != nil {
		if errors.Is(err, bills.ErrNotFound) {
			slog.InfoContext(ctx, "Response for unknown notification ignored",
				"notification_id", resp.NotificationID,
				"action", resp.Action)
			return "not_found"
		}
		slog.ErrorContext(ctx, "Failed to resolve notification", "notification_id", resp.NotificationID, "error", err)
		return "error"
	}

	switch resp.Action {
	case notify.RemindAction:
		at := r.now().Add(r.snooze)
		out, err := r.bills.ScheduleReminder(ctx, bill.ID, at)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to snooze reminder", "bill_id", bill.ID, "error", err)
			return "error"
		}
		slog.InfoContext(ctx, "Reminder snoozed",
			"bill_id", bill.ID,
			"remind_at", at,
			"state", out.State)
		if out.State != reminder.StateScheduled {
			return string(out.State)
		}
		return "ok"

	case notify.MarkAsPaidAction:
		if _, err := r.bills.MarkPaid(ctx, bill.ID, r.now()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark bill as paid", "bill_id", bill.ID, "error", err)
			return "error"
		}
		return "ok"

	default:
		slog.DebugContext(ctx, "Unhandled notification action", "action", resp.Action, "bill_id", bill.ID)
		return "ignored"
	}
}

// WillPresent decides how a reminder shows while the app is in the foreground.
func (r *Router) WillPresent(ctx context.Context, notificationID string) notify.PresentationOptions {
	return notify.PresentList | notify.PresentBanner | notify.PresentSound
}
