// Package store persists received account groups in a local Bolt database
// so an operator can audit what arrived across receiver restarts. This is
// an output sink only: no protocol or session state lives here, and a fresh
// connection always starts from the wire handshake regardless of what the
// ledger holds.
package store

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/zeebo/blake3"

	"github.com/coldstream-io/coldstream/internal/record"
)

var (
	bucketAccounts = []byte("accounts") // content hash -> group JSON
	bucketSequence = []byte("sequence") // record index -> content hash
)

// Store is a Bolt-backed ledger of received account groups, keyed by BLAKE3
// content hash with a secondary index-to-hash bucket. Re-storing the same
// group at the same index is a no-op, so replayed receiver runs stay clean.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the ledger at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketAccounts, bucketSequence} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Put records one received group under its index.
func (s *Store) Put(index uint64, g record.AccountGroup) error {
	payload, err := record.MarshalGroup(g)
	if err != nil {
		return err
	}
	hash := blake3.Sum256(payload)

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketAccounts).Put(hash[:], payload); err != nil {
			return err
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], index)
		return tx.Bucket(bucketSequence).Put(key[:], hash[:])
	})
}

// Get returns the group stored at index, if any.
func (s *Store) Get(index uint64) (record.AccountGroup, bool, error) {
	var payload []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], index)
		hash := tx.Bucket(bucketSequence).Get(key[:])
		if hash == nil {
			return nil
		}
		if raw := tx.Bucket(bucketAccounts).Get(hash); raw != nil {
			payload = append([]byte(nil), raw...)
		}
		return nil
	})
	if err != nil || payload == nil {
		return nil, false, err
	}
	g, err := record.UnmarshalGroup(payload)
	if err != nil {
		return nil, false, fmt.Errorf("store: corrupt entry at index %d: %w", index, err)
	}
	return g, true, nil
}

// Count returns the number of indexed groups.
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketSequence).Stats().KeyN
		return nil
	})
	return n, err
}

// Indexes returns all stored record indexes in ascending order.
func (s *Store) Indexes() ([]uint64, error) {
	var out []uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSequence).ForEach(func(k, _ []byte) error {
			out = append(out, binary.BigEndian.Uint64(k))
			return nil
		})
	})
	return out, err
}

func (s *Store) Close() error { return s.db.Close() }
