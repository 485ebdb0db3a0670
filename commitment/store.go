// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commitment

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// Persistence is the subset of the database used for commitment records.
// Commitments are sparse and short-lived, so they live in the key-value
// store rather than the relational metadata store.
type Persistence interface {
	SetCommitment(key Key, digest [DigestSize]byte, committedAt time.Time) error
	DeleteCommitment(key Key) error
	ListCommitments() (map[Key]Commitment, error)
}

type StoreConfig struct {
	Logger      *slog.Logger
	Persistence Persistence
	RevealDelay time.Duration
}

// Store holds pending commitments keyed by (subject, approver). A commit
// overwrites any prior commitment for the same key; a successful reveal
// consumes it.
type Store struct {
	mu          sync.Mutex
	entries     map[Key]Commitment
	persistence Persistence
	revealDelay time.Duration
	logger      *slog.Logger
}

func NewStore(cfg StoreConfig) (*Store, error) {
	s := &Store{
		entries:     make(map[Key]Commitment),
		persistence: cfg.Persistence,
		revealDelay: cfg.RevealDelay,
		logger:      cfg.Logger,
	}
	if s.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if s.persistence != nil {
		entries, err := s.persistence.ListCommitments()
		if err != nil {
			return nil, err
		}
		s.entries = entries
	}
	return s, nil
}

// Put records a commitment, overwriting any prior commitment for the same
// (subject, approver) pair.
func (s *Store) Put(key Key, digest [DigestSize]byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistence != nil {
		if err := s.persistence.SetCommitment(key, digest, now); err != nil {
			return err
		}
	}
	s.entries[key] = Commitment{
		Digest:      digest,
		CommittedAt: now,
	}
	s.logger.Debug(
		"commitment recorded",
		"component", "commitment",
		"subject", key.Kind.String(),
		"subject_id", key.SubjectId,
		"approver", key.Approver.String(),
	)
	return nil
}

// Verify checks that a commitment exists for the key, that the recomputed
// digest matches it exactly, and that the reveal window has elapsed. It
// does not consume the commitment; callers delete it with Consume once the
// enclosing operation has applied its effects.
func (s *Store) Verify(
	key Key,
	digest [DigestSize]byte,
	now time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return ErrUnknownCommitment
	}
	if entry.Digest != digest {
		return ErrDigestMismatch
	}
	if elapsed := now.Sub(entry.CommittedAt); elapsed < s.revealDelay {
		return RevealTooEarlyError{
			Remaining: s.revealDelay - elapsed,
		}
	}
	return nil
}

// Consume deletes a commitment after a successful reveal
func (s *Store) Consume(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; !ok {
		return ErrUnknownCommitment
	}
	if s.persistence != nil {
		if err := s.persistence.DeleteCommitment(key); err != nil {
			return err
		}
	}
	delete(s.entries, key)
	return nil
}

// Get returns the commitment for a key, if present
func (s *Store) Get(key Key) (Commitment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	return entry, ok
}

// Count returns the number of pending commitments
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
