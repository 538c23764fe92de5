package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DueDateLayout is the numeric date form used wherever a due date is shown.
const DueDateLayout = "1/2/2006"

// FormattedDueDate returns the due date as a numeric date, or "" when unset.
func (b Bill) FormattedDueDate() string {
	if b.DueDate == nil {
		return ""
	}
	return b.DueDate.Format(DueDateLayout)
}

// FormattedAmount returns the amount in dollars; a missing amount renders as zero.
func (b Bill) FormattedAmount() string {
	if b.Amount == nil {
		return FormatUSD(decimal.Zero)
	}
	return FormatUSD(*b.Amount)
}

// PayeeName returns the payee or "" when unset.
func (b Bill) PayeeName() string {
	if b.Payee == nil {
		return ""
	}
	return *b.Payee
}

// ReminderBody summarizes the bill for a reminder notification.
func (b Bill) ReminderBody() string {
	return fmt.Sprintf("%s due to %s on %s", b.FormattedAmount(), b.PayeeName(), b.FormattedDueDate())
}
