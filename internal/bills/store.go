// Package bills holds the in-memory bill collection and writes it through a
// storage.Persister.
package bills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"billminder/internal/core"
	"billminder/internal/metrics"
	"billminder/internal/storage"
)

var ErrNotFound = errors.New("bill not found")

// Store caches the collection after the first access. All methods are safe
// for concurrent use; observers run after the lock is released.
type Store struct {
	persister storage.Persister
	metrics   *metrics.Metrics

	mu        sync.Mutex
	loaded    bool
	bills     map[uuid.UUID]core.Bill
	observers map[int]func()
	nextObs   int
}

// Option configures a Store.
type Option func(*Store)

// WithMetrics records persist results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// NewStore creates a store that loads from p on first access.
func NewStore(p storage.Persister, opts ...Option) *Store {
	s := &Store{
		persister: p,
		observers: make(map[int]func()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a new empty bill. It is not persisted.
func (s *Store) Create(ctx context.Context) core.Bill {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	bill := core.NewBill()
	s.bills[bill.ID] = bill
	return bill.Clone()
}

// List returns a sorted snapshot.
func (s *Store) List(ctx context.Context) []core.Bill {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	out := make([]core.Bill, 0, len(s.bills))
	for _, b := range s.bills {
		out = append(out, b.Clone())
	}
	core.SortBills(out)
	return out
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	b, ok := s.bills[id]
	if !ok {
		return core.Bill{}, fmt.Errorf("bill %s: %w", id, ErrNotFound)
	}
	return b.Clone(), nil
}

// FindByNotificationID returns the bill whose reminder carries the handle.
func (s *Store) FindByNotificationID(ctx context.Context, notificationID string) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)

	for _, b := range s.bills {
		if b.NotificationID != nil && *b.NotificationID == notificationID {
			return b.Clone(), nil
		}
	}
	return core.Bill{}, fmt.Errorf("notification %s: %w", notificationID, ErrNotFound)
}

// UpsertAndPersist inserts or replaces the bill by ID, writes the collection
// and signals observers.
func (s *Store) UpsertAndPersist(ctx context.Context, bill core.Bill) error {
	s.mu.Lock()
	s.ensureLoaded(ctx)
	s.bills[bill.ID] = bill.Clone()
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// Delete removes the bill from memory only. Call Persist to make it durable.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded(ctx)
	delete(s.bills, id)
}

// Persist writes the whole collection and signals observers.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	s.ensureLoaded(ctx)
	err := s.persistLocked(ctx)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	s.notify()
	return nil
}

// Subscribe registers fn to run after every successful write.
func (s *Store) Subscribe(fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.observers, id)
		})
	}
}

// Invalidate drops the cache; the next access reloads from the persister.
func (s *Store) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded = false
	s.bills = nil
}

func (s *Store) ensureLoaded(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true
	s.bills = make(map[uuid.UUID]core.Bill)

	loaded, err := s.persister.Load(ctx)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.InfoContext(ctx, "No saved bills, starting empty")
		} else {
			slog.WarnContext(ctx, "Failed to load bills, starting empty", "error", err)
		}
		return
	}
	for _, b := range loaded {
		s.bills[b.ID] = b
	}
	slog.InfoContext(ctx, "Bills loaded", "count", len(s.bills))
}

func (s *Store) persistLocked(ctx context.Context) error {
	snapshot := make([]core.Bill, 0, len(s.bills))
	for _, b := range s.bills {
		snapshot = append(snapshot, b)
	}
	core.SortBills(snapshot)

	err := s.persister.Save(ctx, snapshot)
	s.metrics.Persist(err, len(snapshot))
	if err != nil {
		return fmt.Errorf("persist bills: %w", err)
	}
	return nil
}

func (s *Store) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
