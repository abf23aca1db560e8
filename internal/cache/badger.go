// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ManuGH/lessonmedia/internal/resource"
)

const badgerPrefix = "lm"

// BadgerStore is an embedded DescriptorStore. Entries carry a TTL so stale
// signed URLs age out on their own.
type BadgerStore struct {
	db     *badger.DB
	closed atomic.Bool
}

// OpenBadgerStore opens (or creates) a store at path. An empty path opens an
// in-memory instance.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Load(ctx context.Context, kind resource.Kind, id string) (*resource.Descriptor, error) {
	if s.closed.Load() {
		return nil, ErrStoreClosed
	}
	var out *resource.Descriptor
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(storeKey(badgerPrefix, kind, id)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			d, err := decodeDescriptor(val)
			if err != nil {
				return err
			}
			out = d
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrStoreMiss
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) Save(ctx context.Context, d resource.Descriptor, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if ttl <= 0 {
		return nil
	}
	buf, err := encodeDescriptor(d)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(storeKey(badgerPrefix, d.Kind, d.ID)), buf).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

func (s *BadgerStore) Delete(ctx context.Context, kind resource.Kind, id string) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(storeKey(badgerPrefix, kind, id)))
	})
}

// Ping reports whether the database is open.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.closed.Load() || s.db.IsClosed() {
		return ErrStoreClosed
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}
