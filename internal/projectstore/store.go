// Package projectstore holds the single currently-open [types.Project] the
// rest of the engine reads from. It exists to eliminate the class of bug
// where two different references to "the current project" drift apart after
// one is updated and the other isn't.
package projectstore

import (
	"sync"

	"github.com/MrWong99/kinoforge/pkg/types"
)

// Store holds one optional Project. UpdateCurrentProject is the only
// mutator; every read goes through CurrentProjectRef, so there is exactly
// one place a stale copy could come from.
//
// All methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	current *types.Project
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// UpdateCurrentProject replaces the held project. It is the only mutator on
// Store: there is no separate "window-scope" reference to fall out of sync
// with it.
func (s *Store) UpdateCurrentProject(p *types.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = p
}

// CurrentProjectRef returns the canonical current project, or nil if none is
// loaded. The returned pointer must be treated as read-only by callers; go
// through UpdateCurrentProject to change it.
func (s *Store) CurrentProjectRef() *types.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Clear removes the current project, e.g. when navigating away from a
// project view.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}
