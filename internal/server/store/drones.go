package store

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jackadi-io/hive/internal/serializer"
	"github.com/jackadi-io/hive/internal/task"
)

type Drone struct {
	ID        task.DroneID `json:"id"`
	Hostname  string       `json:"hostname"`
	Address   string       `json:"address"`
	FirstSeen time.Time    `json:"first_seen"`
	LastSeen  time.Time    `json:"last_seen"`
	Connected bool         `json:"connected"`
}

// DroneInfo is what a drone reports about itself when it shows up.
type DroneInfo struct {
	Hostname string
	Address  string
}

// Touch registers a drone, or refreshes its last seen time and reported info.
func (s *Store) Touch(id task.DroneID, info DroneInfo, now time.Time) (Drone, error) {
	var d Drone
	err := s.update(func(txn *badger.Txn) error {
		key := GenerateDroneKey(id)
		existing, err := getDrone(txn, id)
		switch {
		case errors.Is(err, ErrDroneNotFound):
			d = Drone{ID: id, FirstSeen: now}
		case err != nil:
			return err
		default:
			d = existing
		}

		d.LastSeen = now
		if info.Hostname != "" {
			d.Hostname = info.Hostname
		}
		if info.Address != "" {
			d.Address = info.Address
		}

		data, err := serializer.JSON.Marshal(d)
		if err != nil {
			return fmt.Errorf("failed to serialize drone: %w", err)
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return Drone{}, err
	}

	d.Connected = s.IsConnected(id)
	return d, nil
}

// Drone returns a registered drone.
func (s *Store) Drone(id task.DroneID) (Drone, bool, error) {
	var d Drone
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		d, err = getDrone(txn, id)
		return err
	})
	if errors.Is(err, ErrDroneNotFound) {
		return Drone{}, false, nil
	}
	if err != nil {
		return Drone{}, false, err
	}
	d.Connected = s.IsConnected(id)
	return d, true, nil
}

// Drones returns every registered drone sorted by ID.
func (s *Store) Drones() ([]Drone, error) {
	drones := []Drone{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix(DroneKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var d Drone
			err := item.Value(func(val []byte) error {
				return serializer.JSON.Unmarshal(val, &d)
			})
			if err != nil {
				slog.Warn("skipping corrupted drone entry", "key", string(item.Key()), "error", err)
				continue
			}
			drones = append(drones, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range drones {
		drones[i].Connected = s.IsConnected(drones[i].ID)
	}
	slices.SortFunc(drones, func(a, b Drone) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return drones, nil
}

// MarkConnected records whether the drone currently holds a session.
func (s *Store) MarkConnected(id task.DroneID, connected bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if connected {
		s.connected[id] = true
		return
	}
	delete(s.connected, id)
}

// ClaimSession marks the drone connected unless it already is. It reports whether the claim succeeded.
func (s *Store) ClaimSession(id task.DroneID) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.connected[id] {
		return false
	}
	s.connected[id] = true
	return true
}

func (s *Store) IsConnected(id task.DroneID) bool {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return s.connected[id]
}

func getDrone(txn *badger.Txn, id task.DroneID) (Drone, error) {
	var d Drone
	item, err := txn.Get(GenerateDroneKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return d, fmt.Errorf("%w: %s", ErrDroneNotFound, id)
	}
	if err != nil {
		return d, err
	}

	err = item.Value(func(val []byte) error {
		return serializer.JSON.Unmarshal(val, &d)
	})
	if err != nil {
		return d, fmt.Errorf("failed to deserialize drone %s: %w", id, err)
	}
	return d, nil
}
