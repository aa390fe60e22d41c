package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/mbroumsadja/WonderFilm/pkg/types"
)

const snapshotPrefix = "snapshot:"

// SnapshotStore persists catalog snapshots keyed by media root
type SnapshotStore struct {
	db *badger.DB
}

func New(dataDir string) (*SnapshotStore, error) {
	if dataDir == "" {
		return nil, errors.New("cache directory is required")
	}

	opts := badger.DefaultOptions(dataDir)
	opts.Logger = nil // badger logs through its own logger otherwise

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return &SnapshotStore{
		db: db,
	}, nil
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// GetSnapshot returns the snapshot stored for root, or nil when none exists
func (s *SnapshotStore) GetSnapshot(root string) (*types.CatalogSnapshot, error) {
	var snapshot *types.CatalogSnapshot

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotPrefix + root))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			snapshot = &types.CatalogSnapshot{}
			return json.Unmarshal(val, snapshot)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog snapshot: %w", err)
	}

	return snapshot, nil
}

func (s *SnapshotStore) SetSnapshot(snapshot *types.CatalogSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog snapshot: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotPrefix+snapshot.Root), data)
	})
}

func (s *SnapshotStore) DeleteSnapshot(root string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(snapshotPrefix + root))
	})
}

func (s *SnapshotStore) CountSnapshots() (int, error) {
	count := 0

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		iter := txn.NewIterator(opts)
		defer iter.Close()

		prefix := []byte(snapshotPrefix)
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			count++
		}
		return nil
	})

	if err != nil {
		return 0, fmt.Errorf("failed to count catalog snapshots: %w", err)
	}

	return count, nil
}

// RunGarbageCollection compacts the value log. Having nothing to rewrite is not an error.
func (s *SnapshotStore) RunGarbageCollection() error {
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		return nil
	}
	return err
}
