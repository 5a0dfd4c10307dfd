package history

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/shepherd/pkg/types"
)

const runsBucket = "runs"

// BoltArchive stores closed run records as JSON in a bbolt database, keyed
// by run ID. It complements the text log with a queryable archive.
type BoltArchive struct {
	db *bolt.DB
}

// NewBoltArchive opens (or creates) the archive at the given path
func NewBoltArchive(path string) (*BoltArchive, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open run archive: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(runsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs bucket: %w", err)
	}

	return &BoltArchive{db: db}, nil
}

// Close closes the underlying database
func (a *BoltArchive) Close() error {
	return a.db.Close()
}

// Put stores one run record, overwriting any record with the same ID
func (a *BoltArchive) Put(record types.RunRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	return a.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).Put([]byte(record.ID), data)
	})
}

// Get retrieves a run record by ID
func (a *BoltArchive) Get(id string) (*types.RunRecord, error) {
	var record types.RunRecord
	err := a.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(runsBucket)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run not found: %s", id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns all archived runs in key order. Run IDs are timestamps, so
// key order is chronological.
func (a *BoltArchive) List() ([]types.RunRecord, error) {
	var records []types.RunRecord
	err := a.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(k, v []byte) error {
			var record types.RunRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, record)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
