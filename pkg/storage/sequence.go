// Package storage - Persistent identifier sequences.
package storage

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// Sequence hands out strictly increasing int64 identifiers that survive
// restarts.
//
// It leases blocks of `bandwidth` values from Badger, so a crash skips at most
// one block of identifiers but never repeats one. Safe for concurrent use.
//
// Example:
//
//	seq, err := engine.Sequence("ids", 1000)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer seq.Release()
//
//	id, _ := seq.NextID() // 1, 2, 3, ...
type Sequence struct {
	mu  sync.Mutex
	seq *badger.Sequence
}

// Sequence opens (or resumes) the named sequence.
func (b *BadgerEngine) Sequence(name string, bandwidth uint64) (*Sequence, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if bandwidth == 0 {
		bandwidth = 1000
	}
	seq, err := b.db.GetSequence(sequenceKey(name), bandwidth)
	if err != nil {
		return nil, fmt.Errorf("opening sequence %q: %w", name, err)
	}
	return &Sequence{seq: seq}, nil
}

// NextID returns the next identifier. The first identifier is 1.
func (s *Sequence) NextID() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq == nil {
		return 0, ErrStorageClosed
	}
	v, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("allocating id: %w", err)
	}
	return int64(v) + 1, nil
}

// Release returns the unused part of the current lease.
// Must be called before the engine is closed.
func (s *Sequence) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq == nil {
		return nil
	}
	err := s.seq.Release()
	s.seq = nil
	return err
}
