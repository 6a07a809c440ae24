package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mmcdole/hddsync/internal/domain"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketCycles = []byte("cycles")
)

// lockTimeout bounds the wait for another process holding the database
const lockTimeout = 5 * time.Second

// HistoryStore implements domain.HistoryStore using BoltDB.
// Keys are a big-endian sequence number, so cursor order is insertion order.
//
// The database is opened per operation so `hddsync -history` can read it
// while the daemon is running.
type HistoryStore struct {
	path string

	// Memory-only mode when path is empty
	mu     sync.Mutex
	memory []domain.CycleResult
}

// OpenHistory prepares the history database at path, creating it if needed.
// An empty path gives a memory-only store.
func OpenHistory(path string) (*HistoryStore, error) {
	s := &HistoryStore{path: path}
	if path == "" {
		return s, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	err := s.update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCycles)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *HistoryStore) Close() error {
	return nil
}

func (s *HistoryStore) open(readOnly bool) (*bolt.DB, error) {
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: lockTimeout, ReadOnly: readOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}
	return db, nil
}

func (s *HistoryStore) update(fn func(tx *bolt.Tx) error) error {
	db, err := s.open(false)
	if err != nil {
		return err
	}
	return errors.Join(db.Update(fn), db.Close())
}

func (s *HistoryStore) view(fn func(tx *bolt.Tx) error) error {
	db, err := s.open(true)
	if err != nil {
		return err
	}
	return errors.Join(db.View(fn), db.Close())
}

// Record appends one finished cycle
func (s *HistoryStore) Record(result domain.CycleResult) error {
	if s.path == "" {
		s.mu.Lock()
		s.memory = append(s.memory, result)
		s.mu.Unlock()
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCycles)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(sequenceKey(seq), data)
	})
}

// Recent returns up to limit cycles, most recent first.
// A non-positive limit returns everything.
func (s *HistoryStore) Recent(limit int) ([]domain.CycleResult, error) {
	if s.path == "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		var out []domain.CycleResult
		for i := len(s.memory) - 1; i >= 0; i-- {
			if limit > 0 && len(out) >= limit {
				break
			}
			out = append(out, s.memory[i])
		}
		return out, nil
	}

	var out []domain.CycleResult
	err := s.view(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCycles)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(out) >= limit {
				break
			}
			var result domain.CycleResult
			if err := json.Unmarshal(v, &result); err != nil {
				return fmt.Errorf("decode cycle %x: %w", k, err)
			}
			out = append(out, result)
		}
		return nil
	})
	return out, err
}

func sequenceKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
