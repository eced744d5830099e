// Package videobuild assembles final-render submission payloads, polls
// active builds, and renders the lane view-models the builder UI projects
// into cards.
package videobuild

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrWong99/kinoforge/pkg/types"
)

// PollInterval is how often active builds are re-checked.
const PollInterval = 5 * time.Second

// TelopCustomStyle and TelopTypography mirror pkg/types' nested telop
// override structs, carried here so the submission payload is self
// contained.
type TelopCustomStyle = types.TelopCustomStyle
type TelopTypography = types.TelopTypography

// BuildSubmission is the payload assembled for POST /projects/:id/video-builds.
type BuildSubmission struct {
	OutputPreset string `json:"output_preset"`
	Captions     struct {
		Enabled  bool   `json:"enabled"`
		Position string `json:"position"`
	} `json:"captions"`
	BGM struct {
		Enabled bool    `json:"enabled"`
		Volume  float64 `json:"volume"` // [0,1]
	} `json:"bgm"`
	Motion struct {
		Preset string `json:"preset"`
	} `json:"motion"`
	Telops struct {
		Enabled        bool               `json:"enabled"`
		StylePreset    string             `json:"style_preset"`
		SizePreset     string             `json:"size_preset"`
		PositionPreset string             `json:"position_preset"`
		CustomStyle    *TelopCustomStyle  `json:"custom_style,omitempty"`
		Typography     *TelopTypography   `json:"typography,omitempty"`
	} `json:"telops"`
}

// BuildPrecondition is returned by PrepareSubmission instead of deciding
// unilaterally what to do about in-flight or missing audio.
type BuildPrecondition string

const (
	// PreconditionOK means the build may be submitted immediately.
	PreconditionOK BuildPrecondition = "ok"
	// PreconditionPreflightBlocked means preflight has required items missing.
	PreconditionPreflightBlocked BuildPrecondition = "preflight_blocked"
	// PreconditionAudioInFlight means a bulk audio job is running; callers
	// should wait rather than risk a silent render.
	PreconditionAudioInFlight BuildPrecondition = "audio_in_flight"
	// PreconditionAudioMissingChoice surfaces the three-way confirm: generate
	// first / skip (silent build) / cancel.
	PreconditionAudioMissingChoice BuildPrecondition = "audio_missing_choice"
)

// Backend is the set of remote operations the controller drives.
type Backend interface {
	Submit(ctx context.Context, projectID string, payload BuildSubmission) (types.VideoBuild, error)
	Refresh(ctx context.Context, buildID string) (types.VideoBuild, error)
	List(ctx context.Context, projectID string) ([]types.VideoBuild, error)
	Get(ctx context.Context, buildID string) (types.VideoBuild, error)
	RefreshDownloadURL(ctx context.Context, buildID string) (types.VideoBuild, error)
}

// Lane is the rendered view-model for a single build card.
type Lane struct {
	Build           types.VideoBuild
	SettingsStrip   string
	ExpressionStrip string
	PendingScrollTo bool
}

// Controller drives build submission, polling, and lane rendering for one
// project at a time. Anti-double-submit guards are held here, set on entry
// to each async operation; Submit and RefreshURL clear theirs via defer, and
// the chat-edit guards are cleared by EndChatEditSend and EndChatEditApply —
// mirroring the supervisor's
// own per-key dedupe, generalized to ad-hoc named flags instead of a job key.
type Controller struct {
	backend Backend

	mu                    sync.Mutex
	startInFlight         bool
	refreshURLInFlight    map[string]bool
	chatEditSendInFlight  bool
	chatEditApplyInFlight bool
}

// New creates a Controller.
func New(backend Backend) *Controller {
	return &Controller{backend: backend, refreshURLInFlight: map[string]bool{}}
}

// PreparePrecondition decides which precondition applies before a caller
// may submit a build, without deciding the outcome itself.
func PreparePrecondition(preflightReady bool, audioJobActive bool, audioMissing bool) BuildPrecondition {
	if !preflightReady {
		return PreconditionPreflightBlocked
	}
	if audioJobActive {
		return PreconditionAudioInFlight
	}
	if audioMissing {
		return PreconditionAudioMissingChoice
	}
	return PreconditionOK
}

// Submit assembles and sends the build submission, guarded against
// concurrent double-submission.
func (c *Controller) Submit(ctx context.Context, projectID string, payload BuildSubmission) (types.VideoBuild, error) {
	c.mu.Lock()
	if c.startInFlight {
		c.mu.Unlock()
		return types.VideoBuild{}, fmt.Errorf("videobuild: a submission is already in flight")
	}
	c.startInFlight = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.startInFlight = false
		c.mu.Unlock()
	}()

	build, err := c.backend.Submit(ctx, projectID, payload)
	if err != nil {
		return types.VideoBuild{}, fmt.Errorf("videobuild: submit: %w", err)
	}
	return build, nil
}

// PollActive refreshes every actively-polling build for projectID, skipping
// retry_wait builds (the server cron retries those), and returns the
// rebuilt lane view-models. newestID, if non-empty, marks that lane's
// PendingScrollTo.
func (c *Controller) PollActive(ctx context.Context, projectID string, newestID string) ([]Lane, error) {
	builds, err := c.backend.List(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("videobuild: list builds: %w", err)
	}

	lanes := make([]Lane, 0, len(builds))
	for _, b := range builds {
		if b.IsActivePolling() && b.Status != types.BuildRetryWait {
			refreshed, err := c.backend.Refresh(ctx, b.ID)
			if err != nil {
				return nil, fmt.Errorf("videobuild: refresh build %q: %w", b.ID, err)
			}
			b = refreshed
		}
		lanes = append(lanes, renderLane(b, b.ID == newestID))
	}
	return lanes, nil
}

func renderLane(b types.VideoBuild, pendingScrollTo bool) Lane {
	return Lane{
		Build:           b,
		SettingsStrip:   settingsStrip(b),
		ExpressionStrip: expressionStrip(b),
		PendingScrollTo: pendingScrollTo,
	}
}

func settingsStrip(b types.VideoBuild) string {
	return fmt.Sprintf("preset=%s", b.SettingsJSON)
}

func expressionStrip(b types.VideoBuild) string {
	es := b.ExpressionSummary
	if es.IsSilent {
		return "silent"
	}
	strip := ""
	if es.HasVoice {
		strip += "voice "
	}
	if es.HasBGM {
		strip += "bgm "
	}
	if es.HasSFX {
		strip += "sfx "
	}
	return strip
}

// RefreshURL re-fetches a completed build missing its DownloadURL (older
// records), guarded per buildID against concurrent refresh calls.
func (c *Controller) RefreshURL(ctx context.Context, buildID string) (types.VideoBuild, error) {
	c.mu.Lock()
	if c.refreshURLInFlight[buildID] {
		c.mu.Unlock()
		return types.VideoBuild{}, fmt.Errorf("videobuild: refresh already in flight for %q", buildID)
	}
	c.refreshURLInFlight[buildID] = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.refreshURLInFlight, buildID)
		c.mu.Unlock()
	}()

	build, err := c.backend.RefreshDownloadURL(ctx, buildID)
	if err != nil {
		return types.VideoBuild{}, fmt.Errorf("videobuild: refresh url: %w", err)
	}
	return build, nil
}

// OpenForPreview always re-fetches the build for the freshest presigned
// URL before a caller opens a preview or chat-edit session against it.
func (c *Controller) OpenForPreview(ctx context.Context, buildID string) (types.VideoBuild, error) {
	build, err := c.backend.Get(ctx, buildID)
	if err != nil {
		return types.VideoBuild{}, fmt.Errorf("videobuild: get build: %w", err)
	}
	return build, nil
}

// BeginChatEditSend marks a chat-edit send as in flight, returning false if
// one is already running. Callers must call EndChatEditSend when done.
func (c *Controller) BeginChatEditSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chatEditSendInFlight {
		return false
	}
	c.chatEditSendInFlight = true
	return true
}

// EndChatEditSend clears the chat-edit send in-flight guard.
func (c *Controller) EndChatEditSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatEditSendInFlight = false
}

// BeginChatEditApply marks a chat-edit apply as in flight, returning false
// if one is already running. Callers must call EndChatEditApply when done.
func (c *Controller) BeginChatEditApply() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chatEditApplyInFlight {
		return false
	}
	c.chatEditApplyInFlight = true
	return true
}

// EndChatEditApply clears the chat-edit apply in-flight guard.
func (c *Controller) EndChatEditApply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chatEditApplyInFlight = false
}
