package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billminder/internal/bills"
	"billminder/internal/core"
	"billminder/internal/reminder"
)

// ErrInvalidBill wraps field validation failures.
var ErrInvalidBill = errors.New("invalid bill")

var errSuperseded = errors.New("reminder superseded")

// BillInput carries the user-editable fields of a bill. A nil field is
// stored as absent.
type BillInput struct {
	Payee   *string
	Amount  *decimal.Decimal
	DueDate *time.Time
}

func (in BillInput) apply(b *core.Bill) {
	b.Payee = in.Payee
	b.Amount = in.Amount
	b.DueDate = in.DueDate
}

// BillService orchestrates bill edits across the store and the reminder
// scheduler.
type BillService struct {
	store     *bills.Store
	scheduler *reminder.Scheduler

	// serializes read-modify-write cycles against the store
	mu sync.Mutex
}

// NewBillService creates a bill service over the store and scheduler.
func NewBillService(store *bills.Store, scheduler *reminder.Scheduler) *BillService {
	return &BillService{
		store:     store,
		scheduler: scheduler,
	}
}

// CreateBill creates a bill with the given fields and persists it.
func (s *BillService) CreateBill(ctx context.Context, in BillInput) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill := core.NewBill()
	in.apply(&bill)
	if err := bill.Validate(); err != nil {
		return core.Bill{}, fmt.Errorf("%w: %w", ErrInvalidBill, err)
	}

	if err := s.store.UpsertAndPersist(ctx, bill); err != nil {
		return core.Bill{}, fmt.Errorf("save bill: %w", err)
	}

	slog.InfoContext(ctx, "Bill created", "bill_id", bill.ID)
	return bill, nil
}

func (s *BillService) ListBills(ctx context.Context) []core.Bill {
	return s.store.List(ctx)
}

func (s *BillService) GetBill(ctx context.Context, id uuid.UUID) (core.Bill, error) {
	return s.store.Get(ctx, id)
}

func (s *BillService) GetBillByNotificationID(ctx context.Context, notificationID string) (core.Bill, error) {
	return s.store.FindByNotificationID(ctx, notificationID)
}

// UpdateBill replaces the editable fields. A bill with a pending reminder gets
// it rescheduled at the same time so the notification text follows the edit.
func (s *BillService) UpdateBill(ctx context.Context, id uuid.UUID, in BillInput) (core.Bill, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Bill{}, err
	}

	edited := current.Clone()
	in.apply(&edited)
	if err := edited.Validate(); err != nil {
		return core.Bill{}, fmt.Errorf("%w: %w", ErrInvalidBill, err)
	}

	var outcome *reminder.Outcome
	if edited.HasReminder() {
		out := s.scheduler.Schedule(ctx, edited, *edited.RemindDate)
		if out.State != reminder.StateStale {
			outcome = &out
		}
	}
	return s.commitEdit(ctx, id, in, outcome)
}

// commitEdit stores the edit together with the reminder rescheduled for it.
// If a newer schedule has started meanwhile, the stored reminder is left to it.
func (s *BillService) commitEdit(ctx context.Context, id uuid.UUID, in BillInput, outcome *reminder.Outcome) (core.Bill, error) {
	bill, err := s.modify(ctx, id, func(b *core.Bill) error {
		in.apply(b)
		if outcome != nil {
			s.applyReminder(ctx, b, outcome)
		}
		return nil
	})
	if errors.Is(err, bills.ErrNotFound) && outcome != nil {
		s.scheduler.Remove(ctx, outcome.Bill)
	}
	return bill, err
}

// SaveBill upserts the bill as given and persists the collection.
func (s *BillService) SaveBill(ctx context.Context, bill core.Bill) error {
	if err := bill.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBill, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.UpsertAndPersist(ctx, bill); err != nil {
		return fmt.Errorf("save bill: %w", err)
	}
	return nil
}

// DeleteBill cancels any pending reminder, removes the bill and persists.
func (s *BillService) DeleteBill(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	// In-flight schedules for this bill become stale.
	s.scheduler.Forget(id)
	s.scheduler.Remove(ctx, bill)

	s.store.Delete(ctx, id)
	if err := s.store.Persist(ctx); err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}

	slog.InfoContext(ctx, "Bill deleted", "bill_id", id)
	return nil
}

// ScheduleReminder replaces the bill's reminder with one at the given time and
// persists the result. Denied and failed outcomes still persist the cleared
// reminder; a stale outcome persists nothing.
func (s *BillService) ScheduleReminder(ctx context.Context, id uuid.UUID, at time.Time) (reminder.Outcome, error) {
	bill, err := s.store.Get(ctx, id)
	if err != nil {
		return reminder.Outcome{}, err
	}

	// May block on an authorization prompt, so no lock is held here.
	out := s.scheduler.Schedule(ctx, bill, at)
	if out.State == reminder.StateStale {
		return out, nil
	}
	return s.commitReminder(ctx, id, out)
}

// commitReminder stores a schedule outcome unless a newer schedule for the
// bill has started since, in which case the outcome is cancelled and returned
// as stale.
func (s *BillService) commitReminder(ctx context.Context, id uuid.UUID, out reminder.Outcome) (reminder.Outcome, error) {
	updated, err := s.modify(ctx, id, func(b *core.Bill) error {
		if !s.applyReminder(ctx, b, &out) {
			return errSuperseded
		}
		return nil
	})
	switch {
	case errors.Is(err, errSuperseded):
		return out, nil
	case errors.Is(err, bills.ErrNotFound):
		// Deleted while scheduling; nothing may stay pending for it.
		s.scheduler.Remove(ctx, out.Bill)
		return out, err
	case err != nil:
		return out, err
	}

	out.Bill = updated
	return out, nil
}

// applyReminder merges the outcome's reminder into the stored bill. It must run
// under the service lock. Only the newest schedule may install its handle, and
// a stored handle it has not already cancelled is cancelled here. A superseded
// outcome is cancelled and b is left untouched.
func (s *BillService) applyReminder(ctx context.Context, b *core.Bill, out *reminder.Outcome) bool {
	if !s.scheduler.Current(b.ID, out.Generation) {
		*out = s.scheduler.Supersede(ctx, *out)
		return false
	}

	if b.NotificationID != nil && !out.Cancelled(*b.NotificationID) &&
		(out.Bill.NotificationID == nil || *b.NotificationID != *out.Bill.NotificationID) {
		s.scheduler.Remove(ctx, *b)
	}
	b.RemindDate = out.Bill.RemindDate
	b.NotificationID = out.Bill.NotificationID
	s.scheduler.Release(b.ID, out.Generation)
	return true
}

// RemoveReminder cancels the pending reminder and persists the cleared bill.
func (s *BillService) RemoveReminder(ctx context.Context, id uuid.UUID) (core.Bill, error) {
	return s.modify(ctx, id, func(b *core.Bill) error {
		// In-flight schedules must not bring the reminder back.
		s.scheduler.Forget(id)
		cleared, _ := s.scheduler.Remove(ctx, *b)
		*b = cleared
		return nil
	})
}

func (s *BillService) MarkPaid(ctx context.Context, id uuid.UUID, at time.Time) (core.Bill, error) {
	bill, err := s.modify(ctx, id, func(b *core.Bill) error {
		b.PaidDate = &at
		return nil
	})
	if err == nil {
		slog.InfoContext(ctx, "Bill marked as paid", "bill_id", id, "paid_at", at)
	}
	return bill, err
}

func (s *BillService) MarkUnpaid(ctx context.Context, id uuid.UUID) (core.Bill, error) {
	return s.modify(ctx, id, func(b *core.Bill) error {
		b.PaidDate = nil
		return nil
	})
}

// modify reads the current bill, applies fn and persists, all under the
// service lock.
func (s *BillService) modify(ctx context.Context, id uuid.UUID, fn func(*core.Bill) error) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bill, err := s.store.Get(ctx, id)
	if err != nil {
		return core.Bill{}, err
	}
	if err := fn(&bill); err != nil {
		return core.Bill{}, err
	}
	if err := bill.Validate(); err != nil {
		return core.Bill{}, fmt.Errorf("%w: %w", ErrInvalidBill, err)
	}
	if err := s.store.UpsertAndPersist(ctx, bill); err != nil {
		return core.Bill{}, fmt.Errorf("save bill: %w", err)
	}
	return bill, nil
}
