package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// billJSON is the wire and file shape of a bill. Amount is written as a JSON
// number rather than decimal's default quoted string.
type billJSON struct {
	ID             string       `json:"id"`
	Amount         *json.Number `json:"amount,omitempty"`
	DueDate        *time.Time   `json:"dueDate,omitempty"`
	NotificationID *string      `json:"notificationID,omitempty"`
	PaidDate       *time.Time   `json:"paidDate,omitempty"`
	Payee          *string      `json:"payee,omitempty"`
	RemindDate     *time.Time   `json:"remindDate,omitempty"`
}

func (b Bill) MarshalJSON() ([]byte, error) {
	rec := billJSON{
		ID:             b.ID.String(),
		DueDate:        b.DueDate,
		NotificationID: b.NotificationID,
		PaidDate:       b.PaidDate,
		Payee:          b.Payee,
		RemindDate:     b.RemindDate,
	}
	if b.Amount != nil {
		n := json.Number(b.Amount.String())
		rec.Amount = &n
	}
	return json.Marshal(rec)
}

func (b *Bill) UnmarshalJSON(data []byte) error {
	var rec billJSON
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return fmt.Errorf("parse bill id %q: %w", rec.ID, err)
	}
	out := Bill{
		ID:             id,
		DueDate:        rec.DueDate,
		NotificationID: rec.NotificationID,
		PaidDate:       rec.PaidDate,
		Payee:          rec.Payee,
		RemindDate:     rec.RemindDate,
	}
	if rec.Amount != nil {
		d, err := decimal.NewFromString(rec.Amount.String())
		if err != nil {
			return fmt.Errorf("parse amount %q: %w", rec.Amount.String(), err)
		}
		out.Amount = &d
	}
	*b = out
	return nil
}
