// Package local is an in-process notification center. It keeps the
// authorization state and pending reminder requests, and a dispatcher loop
// hands due requests to deliverers (log output, AMQP).
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"billminder/internal/notify"
)

var ErrNoResponseHandler = errors.New("no response handler registered")

// Prompter asks the user for notification permission.
type Prompter func(ctx context.Context) (bool, error)

// GrantAlways returns a prompter that answers with a fixed decision.
func GrantAlways(granted bool) Prompter {
	return func(context.Context) (bool, error) { return granted, nil }
}

// Center implements notify.Service.
type Center struct {
	mu         sync.Mutex
	status     notify.AuthorizationStatus
	prompter   Prompter
	pending    map[string]notify.Request
	deliverers []notify.Deliverer
	onResponse notify.ResponseHandler
	onPresent  notify.PresentHandler
	now        func() time.Time
}

var _ notify.Service = (*Center)(nil)

// Option configures a Center.
type Option func(*Center)

// WithPrompter sets who answers authorization requests.
func WithPrompter(p Prompter) Option {
	return func(c *Center) { c.prompter = p }
}

// WithClock replaces the time source used to find due requests.
func WithClock(now func() time.Time) Option {
	return func(c *Center) { c.now = now }
}

// WithDeliverer adds a destination for due requests.
func WithDeliverer(d notify.Deliverer) Option {
	return func(c *Center) { c.deliverers = append(c.deliverers, d) }
}

// New creates a center starting at the given authorization status.
// Without a prompter, requests for permission are declined.
func New(status notify.AuthorizationStatus, opts ...Option) *Center {
	c := &Center{
		status:   status,
		prompter: GrantAlways(false),
		pending:  make(map[string]notify.Request),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Center) AuthorizationStatus(_ context.Context) (notify.AuthorizationStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, nil
}

// RequestAuthorization prompts only while the status is not determined; the
// answer is remembered.
func (c *Center) RequestAuthorization(ctx context.Context) (bool, error) {
	c.mu.Lock()
	status := c.status
	prompter := c.prompter
	c.mu.Unlock()

	if status != notify.StatusNotDetermined {
		return notify.Granted(status), nil
	}

	granted, err := prompter(ctx)
	if err != nil {
		return false, fmt.Errorf("prompt for authorization: %w", err)
	}

	c.mu.Lock()
	if c.status == notify.StatusNotDetermined {
		if granted {
			c.status = notify.StatusAuthorized
		} else {
			c.status = notify.StatusDenied
		}
	}
	c.mu.Unlock()

	slog.InfoContext(ctx, "Notification authorization decided", "granted", granted)
	return granted, nil
}

// SetAuthorizationStatus changes the status, as a settings change would.
func (c *Center) SetAuthorizationStatus(status notify.AuthorizationStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

func (c *Center) Submit(ctx context.Context, req notify.Request) error {
	if req.ID == "" {
		return errors.New("notification request without id")
	}
	if req.TriggerAt.IsZero() {
		return errors.New("notification request without trigger time")
	}

	c.mu.Lock()
	if !notify.Granted(c.status) {
		c.mu.Unlock()
		return fmt.Errorf("notifications not authorized (status %s)", c.status)
	}
	c.pending[req.ID] = req
	c.mu.Unlock()

	slog.DebugContext(ctx, "Notification request submitted",
		"notification_id", req.ID,
		"trigger_at", req.TriggerAt)
	return nil
}

// Cancel removes a pending request. Unknown ids are ignored.
func (c *Center) Cancel(ctx context.Context, id string) error {
	c.mu.Lock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if ok {
		slog.DebugContext(ctx, "Notification request cancelled", "notification_id", id)
	}
	return nil
}

// Pending returns the pending requests ordered by trigger time.
func (c *Center) Pending() []notify.Request {
	c.mu.Lock()
	out := make([]notify.Request, 0, len(c.pending))
	for _, req := range c.pending {
		out = append(out, req)
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b notify.Request) int {
		return a.TriggerAt.Compare(b.TriggerAt)
	})
	return out
}

func (c *Center) OnResponse(h notify.ResponseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResponse = h
}

func (c *Center) OnPresent(h notify.PresentHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPresent = h
}

// Respond hands a user action to the registered handler and waits until the
// handler signals completion.
func (c *Center) Respond(ctx context.Context, resp notify.Response) error {
	c.mu.Lock()
	handler := c.onResponse
	c.mu.Unlock()
	if handler == nil {
		return ErrNoResponseHandler
	}

	finished := make(chan struct{})
	var once sync.Once
	handler(ctx, resp, func() { once.Do(func() { close(finished) }) })

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DispatchDue delivers every pending request whose trigger time has passed
// and returns how many were dispatched.
func (c *Center) DispatchDue(ctx context.Context) int {
	now := c.now()

	c.mu.Lock()
	var due []notify.Request
	for id, req := range c.pending {
		if !req.TriggerAt.After(now) {
			due = append(due, req)
			delete(c.pending, id)
		}
	}
	deliverers := slices.Clone(c.deliverers)
	present := c.onPresent
	c.mu.Unlock()

	slices.SortFunc(due, func(a, b notify.Request) int {
		return a.TriggerAt.Compare(b.TriggerAt)
	})

	for _, req := range due {
		opts := notify.PresentList | notify.PresentBanner | notify.PresentSound
		if present != nil {
			opts = present(ctx, req.ID)
		}
		for _, d := range deliverers {
			if err := d.Deliver(ctx, req, opts); err != nil {
				slog.ErrorContext(ctx, "Failed to deliver notification",
					"notification_id", req.ID,
					"error", err)
			}
		}
	}
	return len(due)
}

// Run dispatches due requests on every tick until ctx is done.
func (c *Center) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "Notification dispatcher started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping notification dispatcher", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if n := c.DispatchDue(ctx); n > 0 {
				slog.InfoContext(ctx, "Dispatched due notifications", "count", n)
			}
		}
	}
}

// LogDeliverer writes delivered notifications to the structured log.
type LogDeliverer struct{}

func (LogDeliverer) Deliver(ctx context.Context, req notify.Request, opts notify.PresentationOptions) error {
	slog.InfoContext(ctx, "Reminder delivered",
		"notification_id", req.ID,
		"title", req.Title,
		"body", req.Body,
		"category", req.Category,
		"presentation", opts.Strings())
	return nil
}
