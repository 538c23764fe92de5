package local

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"billminder/internal/notify"
)

type recordingDeliverer struct {
	mu   sync.Mutex
	got  []notify.Request
	opts []notify.PresentationOptions
}

func (d *recordingDeliverer) Deliver(_ context.Context, req notify.Request, opts notify.PresentationOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.got = append(d.got, req)
	d.opts = append(d.opts, opts)
	return nil
}

func TestCenter_RequestAuthorization(t *testing.T) {
	tests := []struct {
		name       string
		status     notify.AuthorizationStatus
		prompt     bool
		want       bool
		wantStatus notify.AuthorizationStatus
	}{
		{"not determined granted", notify.StatusNotDetermined, true, true, notify.StatusAuthorized},
		{"not determined declined", notify.StatusNotDetermined, false, false, notify.StatusDenied},
		{"denied never prompts", notify.StatusDenied, true, false, notify.StatusDenied},
		{"authorized", notify.StatusAuthorized, false, true, notify.StatusAuthorized},
		{"provisional", notify.StatusProvisional, false, true, notify.StatusProvisional},
		{"ephemeral", notify.StatusEphemeral, true, false, notify.StatusEphemeral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.status, WithPrompter(GrantAlways(tt.prompt)))
			got, err := c.RequestAuthorization(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("RequestAuthorization() = %v, want %v", got, tt.want)
			}
			status, _ := c.AuthorizationStatus(context.Background())
			if status != tt.wantStatus {
				t.Errorf("status after request = %s, want %s", status, tt.wantStatus)
			}
		})
	}
}

func TestCenter_PrompterError(t *testing.T) {
	c := New(notify.StatusNotDetermined, WithPrompter(func(context.Context) (bool, error) {
		return false, errors.New("dialog dismissed")
	}))
	if _, err := c.RequestAuthorization(context.Background()); err == nil {
		t.Fatal("expected error from failing prompter")
	}
	status, _ := c.AuthorizationStatus(context.Background())
	if status != notify.StatusNotDetermined {
		t.Fatalf("status should stay undetermined, got %s", status)
	}
}

func TestCenter_SubmitCancelPending(t *testing.T) {
	ctx := context.Background()
	c := New(notify.StatusAuthorized)
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	if err := c.Submit(ctx, notify.Request{ID: "b", TriggerAt: base.Add(time.Hour)}); err != nil {
		t.Fatalf("submit b: %v", err)
	}
	if err := c.Submit(ctx, notify.Request{ID: "a", TriggerAt: base}); err != nil {
		t.Fatalf("submit a: %v", err)
	}
	if err := c.Submit(ctx, notify.Request{TriggerAt: base}); err == nil {
		t.Fatal("expected error for missing id")
	}

	pending := c.Pending()
	if len(pending) != 2 || pending[0].ID != "a" || pending[1].ID != "b" {
		t.Fatalf("unexpected pending: %+v", pending)
	}

	if err := c.Cancel(ctx, "a"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := c.Cancel(ctx, "missing"); err != nil {
		t.Fatalf("cancel of unknown id should be a no-op: %v", err)
	}
	if pending := c.Pending(); len(pending) != 1 || pending[0].ID != "b" {
		t.Fatalf("unexpected pending after cancel: %+v", pending)
	}
}

func TestCenter_SubmitRequiresAuthorization(t *testing.T) {
	c := New(notify.StatusDenied)
	err := c.Submit(context.Background(), notify.Request{ID: "x", TriggerAt: time.Now()})
	if err == nil {
		t.Fatal("expected submit to fail when not authorized")
	}
}

func TestCenter_DispatchDue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	d := &recordingDeliverer{}
	c := New(notify.StatusAuthorized, WithClock(func() time.Time { return now }), WithDeliverer(d))
	c.OnPresent(func(context.Context, string) notify.PresentationOptions {
		return notify.PresentBanner
	})

	_ = c.Submit(ctx, notify.Request{ID: "past", TriggerAt: now.Add(-time.Minute)})
	_ = c.Submit(ctx, notify.Request{ID: "exact", TriggerAt: now})
	_ = c.Submit(ctx, notify.Request{ID: "future", TriggerAt: now.Add(time.Minute)})

	if n := c.DispatchDue(ctx); n != 2 {
		t.Fatalf("expected 2 dispatched, got %d", n)
	}
	if len(d.got) != 2 || d.got[0].ID != "past" || d.got[1].ID != "exact" {
		t.Fatalf("unexpected deliveries: %+v", d.got)
	}
	if d.opts[0] != notify.PresentBanner {
		t.Fatalf("presentation handler not consulted: %v", d.opts[0])
	}
	if pending := c.Pending(); len(pending) != 1 || pending[0].ID != "future" {
		t.Fatalf("future request should remain pending: %+v", pending)
	}
	if n := c.DispatchDue(ctx); n != 0 {
		t.Fatalf("delivered requests must not be dispatched twice, got %d", n)
	}
}

func TestCenter_Respond(t *testing.T) {
	ctx := context.Background()
	c := New(notify.StatusAuthorized)

	if err := c.Respond(ctx, notify.Response{NotificationID: "n"}); !errors.Is(err, ErrNoResponseHandler) {
		t.Fatalf("expected ErrNoResponseHandler, got %v", err)
	}

	var got notify.Response
	c.OnResponse(func(_ context.Context, resp notify.Response, done func()) {
		got = resp
		go done()
	})

	resp := notify.Response{NotificationID: "n1", Action: notify.MarkAsPaidAction}
	if err := c.Respond(ctx, resp); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got != resp {
		t.Fatalf("handler got %+v, want %+v", got, resp)
	}
}

func TestCenter_RespondHonorsContext(t *testing.T) {
	c := New(notify.StatusAuthorized)
	c.OnResponse(func(context.Context, notify.Response, func()) {})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Respond(ctx, notify.Response{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
