// Package notify defines the boundary to the notification service that
// delivers time-triggered reminders and reports user actions on them.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AuthorizationStatus is the user's current permission for notifications.
type AuthorizationStatus int

const (
	StatusUnknown AuthorizationStatus = iota
	StatusNotDetermined
	StatusDenied
	StatusAuthorized
	StatusProvisional
	StatusEphemeral
)

var statusNames = map[AuthorizationStatus]string{
	StatusUnknown:       "unknown",
	StatusNotDetermined: "not_determined",
	StatusDenied:        "denied",
	StatusAuthorized:    "authorized",
	StatusProvisional:   "provisional",
	StatusEphemeral:     "ephemeral",
}

func (s AuthorizationStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// ParseAuthorizationStatus maps a config string to a status.
func ParseAuthorizationStatus(s string) (AuthorizationStatus, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	for status, name := range statusNames {
		if name == key {
			return status, nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown authorization status %q", s)
}

// Action identifiers offered on delivered reminders.
const (
	RemindAction     = "RemindAction"
	MarkAsPaidAction = "MarkAsPaidAction"
)

// Ports for the notification service.
type (
	// Request is a single, non-repeating notification bound to a trigger time.
	Request struct {
		ID        string    `json:"id"`
		TriggerAt time.Time `json:"triggerAt"`
		Title     string    `json:"title"`
		Body      string    `json:"body"`
		Category  string    `json:"category"`
	}

	// Response is a user action on a delivered notification.
	Response struct {
		NotificationID string `json:"notificationID"`
		Action         string `json:"action"`
	}

	// Service is what the reminder scheduler needs from the platform.
	Service interface {
		AuthorizationStatus(ctx context.Context) (AuthorizationStatus, error)
		// RequestAuthorization may block until the user decides.
		RequestAuthorization(ctx context.Context) (granted bool, err error)
		Submit(ctx context.Context, req Request) error
		Cancel(ctx context.Context, id string) error
	}

	// ResponseHandler handles a user action. It must call done exactly once.
	ResponseHandler func(ctx context.Context, resp Response, done func())

	// PresentHandler decides how a notification is shown while the app is in
	// the foreground.
	PresentHandler func(ctx context.Context, notificationID string) PresentationOptions

	// Deliverer receives requests whose trigger time has passed.
	Deliverer interface {
		Deliver(ctx context.Context, req Request, opts PresentationOptions) error
	}
)

// PresentationOptions is a set of ways a notification can be shown.
type PresentationOptions uint8

const (
	PresentList PresentationOptions = 1 << iota
	PresentBanner
	PresentSound
)

func (o PresentationOptions) Has(flag PresentationOptions) bool {
	return o&flag != 0
}

// Strings returns the set flags by name, in a fixed order.
func (o PresentationOptions) Strings() []string {
	var out []string
	if o.Has(PresentList) {
		out = append(out, "list")
	}
	if o.Has(PresentBanner) {
		out = append(out, "banner")
	}
	if o.Has(PresentSound) {
		out = append(out, "sound")
	}
	return out
}

// Granted maps an authorization status to a grant decision without prompting.
// StatusNotDetermined is not granted here; callers prompt for it instead.
// Unrecognized statuses are never treated as granted.
func Granted(status AuthorizationStatus) bool {
	switch status {
	case StatusAuthorized, StatusProvisional:
		return true
	default:
		return false
	}
}
