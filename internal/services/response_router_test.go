package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"billminder/internal/core"
	"billminder/internal/metrics"
	"billminder/internal/notify"
	"billminder/internal/reminder"
)

var fixedNow = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)

func scheduledBill(t *testing.T, f *fixture) core.Bill {
	t.Helper()
	ctx := context.Background()
	due := time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC)
	bill, err := f.service.CreateBill(ctx, input("Electric", "75.20", &due))
	if err != nil {
		t.Fatal(err)
	}
	out, err := f.service.ScheduleReminder(ctx, bill.ID, fixedNow.Add(-time.Hour))
	if err != nil || out.State != reminder.StateScheduled {
		t.Fatalf("schedule: state=%s err=%v", out.State, err)
	}
	return out.Bill
}

func respond(t *testing.T, r *Router, resp notify.Response) {
	t.Helper()
	calls := 0
	r.HandleResponse(context.Background(), resp, func() { calls++ })
	if calls != 1 {
		t.Fatalf("done called %d times, want 1", calls)
	}
}

func TestRouter_MarkAsPaid(t *testing.T) {
	f := newFixture(t, notify.StatusAuthorized)
	bill := scheduledBill(t, f)
	r := NewRouter(f.service, WithClock(func() time.Time { return fixedNow }))

	respond(t, r, notify.Response{NotificationID: *bill.NotificationID, Action: notify.MarkAsPaidAction})

	got, err := f.service.GetBill(context.Background(), bill.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PaidDate == nil || !got.PaidDate.Equal(fixedNow) {
		t.Fatalf("paid date = %v, want %v", got.PaidDate, fixedNow)
	}
	if *got.Payee != *bill.Payee || !got.Amount.Equal(*bill.Amount) ||
		!got.DueDate.Equal(*bill.DueDate) || *got.NotificationID != *bill.NotificationID {
		t.Fatalf("other fields must be untouched: %+v", got)
	}
}

func TestRouter_RemindLater(t *testing.T) {
	f := newFixture(t, notify.StatusAuthorized)
	bill := scheduledBill(t, f)
	r := NewRouter(f.service,
		WithClock(func() time.Time { return fixedNow }),
		WithSnooze(30*time.Minute))

	respond(t, r, notify.Response{NotificationID: *bill.NotificationID, Action: notify.RemindAction})

	got, _ := f.service.GetBill(context.Background(), bill.ID)
	want := fixedNow.Add(30 * time.Minute)
	if got.RemindDate == nil || !got.RemindDate.Equal(want) {
		t.Fatalf("remind date = %v, want %v", got.RemindDate, want)
	}
	if *got.NotificationID == *bill.NotificationID {
		t.Fatal("snooze should use a new notification handle")
	}
	pending := f.center.Pending()
	if len(pending) != 1 || pending[0].ID != *got.NotificationID {
		t.Fatalf("expected only the snoozed request pending, got %+v", pending)
	}
}

func TestRouter_DefaultSnoozeIsOneHour(t *testing.T) {
	f := newFixture(t, notify.StatusAuthorized)
	bill := scheduledBill(t, f)
	r := NewRouter(f.service, WithClock(func() time.Time { return fixedNow }))

	respond(t, r, notify.Response{NotificationID: *bill.NotificationID, Action: notify.RemindAction})

	got, _ := f.service.GetBill(context.Background(), bill.ID)
	if !got.RemindDate.Equal(fixedNow.Add(time.Hour)) {
		t.Fatalf("remind date = %v", got.RemindDate)
	}
}

func TestRouter_NoOps(t *testing.T) {
	tests := []struct {
		name   string
		resp   func(bill core.Bill) notify.Response
		result string
	}{
		{
			name: "unknown notification",
			resp: func(core.Bill) notify.Response {
				return notify.Response{NotificationID: "missing", Action: notify.MarkAsPaidAction}
			},
			result: "not_found",
		},
		{
			name: "unknown action",
			resp: func(b core.Bill) notify.Response {
				return notify.Response{NotificationID: *b.NotificationID, Action: "com.apple.UNNotificationDefaultActionIdentifier"}
			},
			result: "ignored",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, notify.StatusAuthorized)
			bill := scheduledBill(t, f)
			m := metrics.New()
			r := NewRouter(f.service, WithRouterMetrics(m))
			resp := tt.resp(bill)

			respond(t, r, resp)

			got, _ := f.service.GetBill(context.Background(), bill.ID)
			if got.IsPaid() || *got.NotificationID != *bill.NotificationID {
				t.Fatalf("bill must be unchanged: %+v", got)
			}
			if v := testutil.ToFloat64(m.ResponseCounter(resp.Action, tt.result)); v != 1 {
				t.Fatalf("response counter for %s = %v", tt.result, v)
			}
		})
	}
}

func TestRouter_ThroughCenter(t *testing.T) {
	f := newFixture(t, notify.StatusAuthorized)
	bill := scheduledBill(t, f)
	r := NewRouter(f.service, WithClock(func() time.Time { return fixedNow }))
	f.center.OnResponse(r.HandleResponse)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := f.center.Respond(ctx, notify.Response{NotificationID: *bill.NotificationID, Action: notify.MarkAsPaidAction})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}

	got, _ := f.service.GetBill(ctx, bill.ID)
	if !got.IsPaid() {
		t.Fatal("bill should be paid")
	}
}

func TestRouter_WillPresent(t *testing.T) {
	r := NewRouter(nil)
	opts := r.WillPresent(context.Background(), "any")
	for _, flag := range []notify.PresentationOptions{notify.PresentList, notify.PresentBanner, notify.PresentSound} {
		if !opts.Has(flag) {
			t.Fatalf("missing %v in %v", flag.Strings(), opts.Strings())
		}
	}
}
