package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "github.com/boltdb/bolt"

	"billminder/internal/core"
)

const billsBucket = "bills"

// Bolt keeps one JSON record per bill, keyed by ID, in a single bucket.
type Bolt struct {
	db *bolt.DB
}

func NewBolt(path string) (*Bolt, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(billsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bills bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

func (s *Bolt) Close() error {
	return s.db.Close()
}

func (s *Bolt) Load(ctx context.Context) ([]core.Bill, error) {
	bills := []core.Bill{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(billsBucket))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var bill core.Bill
			if err := json.Unmarshal(v, &bill); err != nil {
				return fmt.Errorf("decode bill %s: %w", k, err)
			}
			bills = append(bills, bill)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return bills, nil
}

// Save drops and recreates the bucket in one transaction.
func (s *Bolt) Save(ctx context.Context, bills []core.Bill) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(billsBucket)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("drop bills bucket: %w", err)
		}
		b, err := tx.CreateBucket([]byte(billsBucket))
		if err != nil {
			return fmt.Errorf("create bills bucket: %w", err)
		}
		for _, bill := range bills {
			data, err := json.Marshal(bill)
			if err != nil {
				return fmt.Errorf("encode bill %s: %w", bill.ID, err)
			}
			if err := b.Put([]byte(bill.ID.String()), data); err != nil {
				return fmt.Errorf("put bill %s: %w", bill.ID, err)
			}
		}
		return nil
	})
}
