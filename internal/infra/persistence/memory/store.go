// Package memory provides the in-memory chemical repository. The sqlite and
// postgres stores embed it and snapshot its state after every write.
package memory

import (
	"context"
	"sort"
	"sync"

	"graphmix/pkg/chem"
	"graphmix/pkg/domain"
)

var _ chem.Repository = (*Store)(nil)

// Snapshot is a point-in-time copy of the repository contents.
type Snapshot struct {
	Chemicals map[string]chem.Chemical `json:"chemicals"`
}

// Store keeps chemicals keyed by name.
type Store struct {
	mu        sync.RWMutex
	chemicals map[string]chem.Chemical
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{chemicals: make(map[string]chem.Chemical)}
}

// Get looks a chemical up by exact name.
func (s *Store) Get(_ context.Context, name string) (chem.Chemical, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chemicals[name]
	return c, ok, nil
}

// Add inserts c. Names are unique.
func (s *Store) Add(_ context.Context, c chem.Chemical) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chemicals[c.Name]; ok {
		return domain.DuplicateError{Entity: "chemical", Name: c.Name}
	}
	s.chemicals[c.Name] = c
	return nil
}

// List returns every chemical ordered by name.
func (s *Store) List(_ context.Context) ([]chem.Chemical, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]chem.Chemical, 0, len(s.chemicals))
	for _, c := range s.chemicals {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ExportState copies the current contents.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Snapshot{Chemicals: make(map[string]chem.Chemical, len(s.chemicals))}
	for k, v := range s.chemicals {
		out.Chemicals[k] = v
	}
	return out
}

// ImportState replaces the contents with snap. Entries are re-keyed by
// their own name.
func (s *Store) ImportState(snap Snapshot) {
	next := make(map[string]chem.Chemical, len(snap.Chemicals))
	for _, c := range snap.Chemicals {
		next[c.Name] = c
	}
	s.mu.Lock()
	s.chemicals = next
	s.mu.Unlock()
}
