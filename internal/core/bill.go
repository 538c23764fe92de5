// Package core holds the bill entity and the rules that belong to it:
// identity, derived status, ordering and formatting.
package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// NotificationCategoryID is the category every reminder is submitted under.
	// Delivered notifications in this category offer the remind/paid actions.
	NotificationCategoryID = "ReminderNotifications"

	// ReminderTitle is the title of every reminder notification.
	ReminderTitle = "Bill Reminder"
)

var (
	ErrNegativeAmount    = errors.New("amount cannot be negative")
	ErrOrphanReminder    = errors.New("notification id set without remind date")
	ErrEmptyNotification = errors.New("empty notification id")
)

// Bill is a payable obligation. ID is the only identity; every other field
// is optional and mutable.
type Bill struct {
	ID             uuid.UUID
	Payee          *string
	Amount         *decimal.Decimal
	DueDate        *time.Time
	PaidDate       *time.Time
	RemindDate     *time.Time
	NotificationID *string
}

// NewBill returns a bill with a fresh ID and no other fields set.
func NewBill() Bill {
	return Bill{ID: uuid.New()}
}

// Same reports whether b and other are the same bill, regardless of field values.
func (b Bill) Same(other Bill) bool {
	return b.ID == other.ID
}

// IsPaid is derived from PaidDate; there is no stored flag.
func (b Bill) IsPaid() bool {
	return b.PaidDate != nil
}

// HasReminder is derived from RemindDate; there is no stored flag.
func (b Bill) HasReminder() bool {
	return b.RemindDate != nil
}

// Validate checks the field-level invariants of a bill.
func (b Bill) Validate() error {
	if b.ID == uuid.Nil {
		return errors.New("bill id cannot be nil")
	}
	if b.Amount != nil && b.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if b.NotificationID != nil {
		if *b.NotificationID == "" {
			return ErrEmptyNotification
		}
		if b.RemindDate == nil {
			return ErrOrphanReminder
		}
	}
	return nil
}

// ClearReminder drops both reminder fields together.
func (b *Bill) ClearReminder() {
	b.NotificationID = nil
	b.RemindDate = nil
}

// Clone returns a copy that shares no pointers with b.
func (b Bill) Clone() Bill {
	out := Bill{ID: b.ID}
	if b.Payee != nil {
		out.Payee = StringPtr(*b.Payee)
	}
	if b.Amount != nil {
		out.Amount = AmountPtr(*b.Amount)
	}
	if b.DueDate != nil {
		out.DueDate = TimePtr(*b.DueDate)
	}
	if b.PaidDate != nil {
		out.PaidDate = TimePtr(*b.PaidDate)
	}
	if b.RemindDate != nil {
		out.RemindDate = TimePtr(*b.RemindDate)
	}
	if b.NotificationID != nil {
		out.NotificationID = StringPtr(*b.NotificationID)
	}
	return out
}

func StringPtr(s string) *string { return &s }

func TimePtr(t time.Time) *time.Time { return &t }

func AmountPtr(d decimal.Decimal) *decimal.Decimal { return &d }
