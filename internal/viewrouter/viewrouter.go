// Package viewrouter tracks the active builder tab for a project and
// refuses navigation to tabs the lifecycle state machine has not yet
// unlocked.
package viewrouter

import (
	"fmt"
	"sync"

	"github.com/MrWong99/kinoforge/internal/lifecycle"
	"github.com/MrWong99/kinoforge/pkg/types"
)

// Router holds the active tab per project and enforces lifecycle gating on
// every navigation. Safe for concurrent use.
type Router struct {
	mu     sync.RWMutex
	active map[string]lifecycle.Tab
}

// New returns an empty Router.
func New() *Router {
	return &Router{active: map[string]lifecycle.Tab{}}
}

// ActiveTab returns the currently active tab for projectID, defaulting to
// TabInput if the project has never navigated.
func (r *Router) ActiveTab(projectID string) lifecycle.Tab {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tab, ok := r.active[projectID]
	if !ok {
		return lifecycle.TabInput
	}
	return tab
}

// Navigate attempts to move projectID to tab given its current status. On
// success the new active tab is persisted and returned; on failure the
// active tab is left unchanged and the error text is "viewrouter: "
// followed by AccessDeniedMessage's text.
func (r *Router) Navigate(projectID string, status types.ProjectStatus, tab lifecycle.Tab) error {
	if !lifecycle.CanAccessTab(status, tab) {
		return fmt.Errorf("viewrouter: %s", lifecycle.AccessDeniedMessage(status, tab))
	}

	r.mu.Lock()
	r.active[projectID] = tab
	r.mu.Unlock()
	return nil
}

// Reset clears the active tab for projectID, e.g. when a project is closed
// or deleted, so a future navigation starts from TabInput again.
func (r *Router) Reset(projectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, projectID)
}
