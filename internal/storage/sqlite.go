package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billminder/internal/core"

	_ "modernc.org/sqlite"
)

const (
	selectBills = `SELECT id, payee, amount, due_date, paid_date, remind_date, notification_id FROM bills`
	insertBill  = `INSERT INTO bills (id, payee, amount, due_date, paid_date, remind_date, notification_id)
VALUES (?, ?, ?, ?, ?, ?, ?)`
)

// SQLite keeps bills in a single table, one row per bill.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dbPath string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLite) Load(ctx context.Context) ([]core.Bill, error) {
	rows, err := s.db.QueryContext(ctx, selectBills)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	defer rows.Close()

	bills := []core.Bill{}
	for rows.Next() {
		var (
			id                            string
			payee, amount, notificationID sql.NullString
			dueDate, paidDate, remindDate sql.NullString
		)
		if err := rows.Scan(&id, &payee, &amount, &dueDate, &paidDate, &remindDate, &notificationID); err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}

		bill, err := billFromRow(id, payee, amount, dueDate, paidDate, remindDate, notificationID)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bills: %w", err)
	}

	return bills, nil
}

// Save replaces every row in one transaction.
func (s *SQLite) Save(ctx context.Context, bills []core.Bill) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM bills`); err != nil {
		return fmt.Errorf("clear bills: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertBill)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bills {
		_, err := stmt.ExecContext(ctx,
			b.ID.String(),
			nullString(b.Payee),
			nullAmount(b.Amount),
			nullTime(b.DueDate),
			nullTime(b.PaidDate),
			nullTime(b.RemindDate),
			nullString(b.NotificationID),
		)
		if err != nil {
			return fmt.Errorf("insert bill %s: %w", b.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bills: %w", err)
	}

	slog.DebugContext(ctx, "Bills saved to SQLite", "count", len(bills))
	return nil
}

func billFromRow(id string, payee, amount, dueDate, paidDate, remindDate, notificationID sql.NullString) (core.Bill, error) {
	var bill core.Bill

	parsed, err := uuid.Parse(id)
	if err != nil {
		return bill, fmt.Errorf("parse bill id %q: %w", id, err)
	}
	bill.ID = parsed

	if payee.Valid {
		bill.Payee = core.StringPtr(payee.String)
	}
	if notificationID.Valid {
		bill.NotificationID = core.StringPtr(notificationID.String)
	}
	if amount.Valid {
		d, err := decimal.NewFromString(amount.String)
		if err != nil {
			return bill, fmt.Errorf("parse amount for bill %s: %w", id, err)
		}
		bill.Amount = &d
	}

	for _, f := range []struct {
		col sql.NullString
		dst **time.Time
	}{
		{dueDate, &bill.DueDate},
		{paidDate, &bill.PaidDate},
		{remindDate, &bill.RemindDate},
	} {
		if !f.col.Valid {
			continue
		}
		t, err := time.Parse(time.RFC3339Nano, f.col.String)
		if err != nil {
			return bill, fmt.Errorf("parse date for bill %s: %w", id, err)
		}
		*f.dst = &t
	}

	return bill, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullAmount(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}
