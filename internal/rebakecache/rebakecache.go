// Package rebakecache holds short-lived snapshots of a project's comic
// rebake status so the builder UI doesn't re-fetch on every render, while
// staying explicitly invalidatable after any operation that can change it.
package rebakecache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TTL is how long a cached snapshot is served before a refetch is required.
const TTL = 30 * time.Second

// SceneRebakeStatus is one scene's entry in a rebake-status snapshot.
type SceneRebakeStatus struct {
	SceneID string `json:"scene_id"`
	Status  string `json:"status"` // pending, outdated, current, no_publish
}

// Summary tallies scene statuses across a snapshot.
type Summary struct {
	Pending   int `json:"pending"`
	Outdated  int `json:"outdated"`
	Current   int `json:"current"`
	NoPublish int `json:"no_publish"`
	Total     int `json:"total"`
}

// Snapshot is the decoded response of GET /projects/:id/comic/rebake-status.
type Snapshot struct {
	ProjectTelopsComic bool                `json:"project_telops_comic"`
	Scenes             []SceneRebakeStatus `json:"scenes"`
	Summary            Summary             `json:"summary"`
}

// Backend fetches a fresh snapshot from the server.
type Backend interface {
	FetchRebakeStatus(ctx context.Context, projectID string) (Snapshot, error)
}

type entry struct {
	snapshot Snapshot
	fetched  time.Time
}

// Cache holds one snapshot per project, refetched at most once per TTL
// unless explicitly invalidated.
//
// All exported methods are safe for concurrent use.
type Cache struct {
	backend Backend

	mu      sync.RWMutex
	entries map[string]entry

	now func() time.Time
}

// New returns a Cache backed by backend.
func New(backend Backend) *Cache {
	return &Cache{backend: backend, entries: map[string]entry{}, now: time.Now}
}

// Get returns the cached snapshot for projectID if it is still within TTL,
// otherwise fetches a fresh one from backend and caches it.
func (c *Cache) Get(ctx context.Context, projectID string) (Snapshot, error) {
	c.mu.RLock()
	e, ok := c.entries[projectID]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetched) < TTL {
		return e.snapshot, nil
	}

	snapshot, err := c.backend.FetchRebakeStatus(ctx, projectID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("rebakecache: fetch: %w", err)
	}

	c.mu.Lock()
	c.entries[projectID] = entry{snapshot: snapshot, fetched: c.now()}
	c.mu.Unlock()

	return snapshot, nil
}

// Invalidate forces the next Get for projectID to refetch, regardless of
// TTL. Callers invoke this after any comic rebake, bulk-rebake, or
// chat-edit apply that requested auto-rebake.
func (c *Cache) Invalidate(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, projectID)
}
