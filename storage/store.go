// Package storage persists artifacts and their content. Every store can
// serve as the artifact source of a query executor.
package storage

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/c360studio/artificer/artifact"
)

// Store persists artifact metadata and optional content.
type Store interface {
	// Put inserts or replaces an artifact. A nil content stores metadata
	// only and drops any previous content.
	Put(ctx context.Context, a *artifact.Artifact, content []byte) error
	// Get returns the artifact with the given UUID or ErrNotFound.
	Get(ctx context.Context, uuid string) (*artifact.Artifact, error)
	// Content returns an artifact's content, ErrNotFound or ErrNoContent.
	Content(ctx context.Context, uuid string) ([]byte, error)
	// Delete removes an artifact or returns ErrNotFound.
	Delete(ctx context.Context, uuid string) error
	// Artifacts returns every stored artifact.
	Artifacts(ctx context.Context) ([]*artifact.Artifact, error)
	// Close releases the store's resources.
	Close() error
}

// keyPattern matches UUIDs usable as keys in every backend.
var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_=.-]+$`)

func checkUUID(uuid string) error {
	if !keyPattern.MatchString(uuid) {
		return fmt.Errorf("%w: %q", ErrInvalidUUID, uuid)
	}
	return nil
}

type memoryRecord struct {
	artifact *artifact.Artifact
	content  []byte
}

// MemoryStore keeps artifacts in process memory. It is safe for concurrent
// use and returns copies, so callers may modify what they get.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]memoryRecord
	order   []string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, a *artifact.Artifact, content []byte) error {
	if err := checkUUID(a.UUID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[a.UUID]; !exists {
		s.order = append(s.order, a.UUID)
	}
	rec := memoryRecord{artifact: a.Clone()}
	if content != nil {
		rec.content = append([]byte{}, content...)
	}
	s.records[a.UUID] = rec
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, uuid string) (*artifact.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.artifact.Clone(), nil
}

// Content implements Store.
func (s *MemoryStore) Content(_ context.Context, uuid string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[uuid]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.content == nil {
		return nil, ErrNoContent
	}
	return append([]byte(nil), rec.content...), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, uuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[uuid]; !ok {
		return ErrNotFound
	}
	delete(s.records, uuid)
	for i, id := range s.order {
		if id == uuid {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Artifacts implements Store. Artifacts are returned in insertion order.
func (s *MemoryStore) Artifacts(_ context.Context) ([]*artifact.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*artifact.Artifact, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id].artifact.Clone())
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}
