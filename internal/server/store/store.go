// Package store keeps task records and the drone registry in badger, and queues outbound frames per drone.
package store

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dgraph-io/badger/v4"

	"github.com/jackadi-io/hive/internal/serializer"
	"github.com/jackadi-io/hive/internal/task"
)

var (
	ErrTaskExists    = errors.New("task already exists")
	ErrTaskNotFound  = errors.New("task not found")
	ErrDroneNotFound = errors.New("drone not found")
	ErrInvalidState  = errors.New("invalid task state")
)

const maxConflictRetries = 20

type Store struct {
	db *badger.DB

	cacheMu sync.Mutex
	queues  map[task.DroneID][]CachedFrame
	signals map[task.DroneID]chan struct{}

	connMu    sync.RWMutex
	connected map[task.DroneID]bool
}

func New(db *badger.DB) *Store {
	return &Store{
		db:        db,
		queues:    make(map[task.DroneID][]CachedFrame),
		signals:   make(map[task.DroneID]chan struct{}),
		connected: make(map[task.DroneID]bool),
	}
}

// Add persists a new record. The TaskID must not exist yet.
func (s *Store) Add(r task.Record) error {
	data, err := serializer.JSON.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to serialize task: %w", err)
	}

	return s.update(func(txn *badger.Txn) error {
		key := GenerateTaskKey(r.TaskID)
		_, err := txn.Get(key)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrTaskExists, r.TaskID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

// Get returns the record of a task. A missing task is reported with found=false and no error.
func (s *Store) Get(id task.ID) (task.Record, bool, error) {
	var r task.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = getRecord(txn, id)
		return err
	})
	if errors.Is(err, ErrTaskNotFound) {
		return task.Record{}, false, nil
	}
	if err != nil {
		return task.Record{}, false, err
	}
	return r, true, nil
}

// GetAll returns every record, oldest first.
func (s *Store) GetAll() ([]task.Record, error) {
	return s.list(func(task.Record) bool { return true })
}

// GetAllByDrone returns the records addressed to a drone, oldest first.
func (s *Store) GetAllByDrone(id task.DroneID) ([]task.Record, error) {
	return s.list(func(r task.Record) bool { return r.DroneID == id })
}

// Update runs fn on the stored record inside one transaction and persists the result.
// Nothing is written if fn returns an error.
func (s *Store) Update(id task.ID, fn func(*task.Record) error) (task.Record, error) {
	var updated task.Record
	err := s.update(func(txn *badger.Txn) error {
		r, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if err := fn(&r); err != nil {
			return err
		}
		if r.TaskID != id {
			return fmt.Errorf("task id cannot be changed: %s -> %s", id, r.TaskID)
		}
		data, err := serializer.JSON.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to serialize task: %w", err)
		}
		updated = r
		return txn.Set(GenerateTaskKey(id), data)
	})
	return updated, err
}

// Delete removes a record. Only PENDING records can be removed.
func (s *Store) Delete(id task.ID) error {
	return s.update(func(txn *badger.Txn) error {
		r, err := getRecord(txn, id)
		if err != nil {
			return err
		}
		if r.Status != task.PENDING {
			return fmt.Errorf("%w: cannot delete %s task", ErrInvalidState, r.Status)
		}
		return txn.Delete(GenerateTaskKey(id))
	})
}

func (s *Store) list(keep func(task.Record) bool) ([]task.Record, error) {
	records := []task.Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix(TaskKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			var r task.Record
			if err := serializer.JSON.Unmarshal(val, &r); err != nil {
				slog.Warn("skipping corrupted task record", "key", string(item.Key()), "error", err)
				continue
			}
			if keep(r) {
				records = append(records, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(records, func(a, b task.Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.TaskID, b.TaskID)
	})
	return records, nil
}

// update retries fn when badger reports a write conflict with a concurrent transaction.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func getRecord(txn *badger.Txn, id task.ID) (task.Record, error) {
	var r task.Record
	item, err := txn.Get(GenerateTaskKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return r, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return r, err
	}

	err = item.Value(func(val []byte) error {
		return serializer.JSON.Unmarshal(val, &r)
	})
	if err != nil {
		return r, fmt.Errorf("failed to deserialize task %s: %w", id, err)
	}
	return r, nil
}
