package uistate

import "sync"

// ButtonState is the rendered state of a single button.
type ButtonState struct {
	Label    string
	Disabled bool
	Loading  bool
}

// ButtonRegistry tracks the loading state of buttons identified by an
// arbitrary string id. SetLoading(id, true) marks the button loading and
// disabled, so State shows the spinner label; SetLoading(id, false) clears
// both flags, and State then shows the label its caller passes. The registry
// does not itself restore a label recorded before loading began.
//
// Repeated calls with the same flag are no-ops beyond the first, so callers
// do not need to track whether a button is already in the state they're
// requesting.
type ButtonRegistry struct {
	mu    sync.Mutex
	state map[string]*buttonEntry
}

type buttonEntry struct {
	originalLabel string
	loading       bool
	disabled      bool
}

// NewButtonRegistry creates an empty ButtonRegistry.
func NewButtonRegistry() *ButtonRegistry {
	return &ButtonRegistry{state: make(map[string]*buttonEntry)}
}

// Register records a button's initial label. Calling Register again for an
// id that is not currently loading updates the stored label. State does not
// read the stored label; it shows the label passed to it.
func (r *ButtonRegistry) Register(id, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state[id]
	if !ok {
		r.state[id] = &buttonEntry{originalLabel: label}
		return
	}
	if !e.loading {
		e.originalLabel = label
	}
}

// SetLoading sets or clears a button's loading and disabled flags. The
// spinnerLabel argument is not stored; State takes the spinner label to show.
// Safe under repeated calls with the same flag.
func (r *ButtonRegistry) SetLoading(id string, loading bool, spinnerLabel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state[id]
	if !ok {
		e = &buttonEntry{}
		r.state[id] = e
	}
	e.loading = loading
	e.disabled = loading
}

// Disable marks a button disabled without entering the loading/spinner
// state — used for bulk-lock and disallowed states that are not themselves
// in-flight operations.
func (r *ButtonRegistry) Disable(id string, disabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state[id]
	if !ok {
		e = &buttonEntry{}
		r.state[id] = e
	}
	e.disabled = disabled
}

// State returns the current rendered state for id, given the current label
// to show when not loading (callers recompute this from lifecycle/supervisor
// state on every render, per the button-state table the supervisor derives).
func (r *ButtonRegistry) State(id string, label string, spinnerLabel string) ButtonState {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.state[id]
	if !ok {
		return ButtonState{Label: label}
	}
	if e.loading {
		return ButtonState{Label: spinnerLabel, Disabled: true, Loading: true}
	}
	return ButtonState{Label: label, Disabled: e.disabled}
}
