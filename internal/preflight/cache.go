package preflight

import "sync"

// Cache holds the most recently computed Result per project, explicitly
// invalidated (not TTL-based) whenever an edit could change readiness. It
// is the source of truth video-build submission consults for CanGenerate.
type Cache struct {
	mu      sync.RWMutex
	results map[string]Result
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{results: map[string]Result{}}
}

// Set stores the evaluated Result for projectID.
func (c *Cache) Set(projectID string, result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[projectID] = result
}

// Get returns the cached Result for projectID, if present.
func (c *Cache) Get(projectID string) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.results[projectID]
	return r, ok
}

// Invalidate drops the cached Result for projectID, forcing the next
// CanGenerate check to recompute.
func (c *Cache) Invalidate(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.results, projectID)
}

// CanGenerate reports whether projectID is currently known to be
// buildable: the cached result says so, and no audio job is in flight.
// audioJobActive is typically internal/bulkaudio.Job.AudioJobActive.
func (c *Cache) CanGenerate(projectID string, audioJobActive bool) bool {
	if audioJobActive {
		return false
	}
	r, ok := c.Get(projectID)
	return ok && r.CanGenerate
}
