package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/y0ug/hashguard/internal/database/models"
	"go.etcd.io/bbolt"
)

var reputationBucket = []byte("Reputation")

// BoltDB implements the Database interface using bbolt.
type BoltDB struct {
	db     *bbolt.DB
	path   string
	logger *logrus.Logger
}

// NewBoltDB initializes a new BoltDB instance.
func NewBoltDB(path string, logger *logrus.Logger) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	boltDB := &BoltDB{
		db:     db,
		path:   path,
		logger: logger,
	}

	if err := boltDB.Initialize(context.TODO()); err != nil {
		db.Close()
		return nil, err
	}

	return boltDB, nil
}

// Initialize sets up the necessary buckets.
func (b *BoltDB) Initialize(context.Context) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(reputationBucket); err != nil {
			return fmt.Errorf("create Reputation bucket: %v", err)
		}
		return nil
	})
}

// GetEntry retrieves a specific reputation entry.
func (b *BoltDB) GetEntry(_ context.Context, key string) (models.ReputationEntry, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(reputationBucket)
		if bucket == nil {
			return fmt.Errorf("Reputation bucket does not exist")
		}
		if val := bucket.Get([]byte(key)); val != nil {
			// Values are only valid for the life of the transaction.
			data = append([]byte(nil), val...)
		}
		return nil
	})
	if err != nil {
		return models.ReputationEntry{}, err
	}
	if data == nil {
		return models.ReputationEntry{}, ErrEntryNotFound
	}
	return decodeEntry(data)
}

// PutEntry stores or replaces an entry.
func (b *BoltDB) PutEntry(_ context.Context, entry models.ReputationEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}
	err = b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(reputationBucket)
		if bucket == nil {
			return fmt.Errorf("Reputation bucket does not exist")
		}
		return bucket.Put([]byte(entry.URLKey), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store entry in BoltDB: %w", err)
	}
	return nil
}

// DeleteEntry removes an entry.
func (b *BoltDB) DeleteEntry(_ context.Context, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(reputationBucket)
		if bucket == nil {
			return fmt.Errorf("Reputation bucket does not exist")
		}
		return bucket.Delete([]byte(key))
	})
}

// CountEntries returns the number of keys in the bucket.
func (b *BoltDB) CountEntries(context.Context) (int, error) {
	count := 0
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(reputationBucket)
		if bucket == nil {
			return fmt.Errorf("Reputation bucket does not exist")
		}
		count = bucket.Stats().KeyN
		return nil
	})
	return count, err
}

// Close closes the bolt file.
func (b *BoltDB) Close(context.Context) error {
	return b.db.Close()
}
