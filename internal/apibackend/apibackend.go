// Package apibackend is the single concrete adapter wrapping pkg/restclient
// that satisfies every component-facing Backend interface: bulkimage,
// bulkaudio, videobuild, sceneformat, chatedit, rebakecache, and sceneedit.
// None of those interfaces share a method name, so one client can serve all
// of them against the same underlying *restclient.Client, the way the
// teacher's provider wrappers each hang their whole surface off one thin
// HTTP client.
package apibackend

import (
	"context"
	"fmt"

	"github.com/MrWong99/kinoforge/internal/bulkaudio"
	"github.com/MrWong99/kinoforge/internal/bulkimage"
	"github.com/MrWong99/kinoforge/internal/chatedit"
	"github.com/MrWong99/kinoforge/internal/rebakecache"
	"github.com/MrWong99/kinoforge/internal/sceneedit"
	"github.com/MrWong99/kinoforge/internal/sceneformat"
	"github.com/MrWong99/kinoforge/internal/supervisor"
	"github.com/MrWong99/kinoforge/internal/videobuild"
	"github.com/MrWong99/kinoforge/pkg/restclient"
	"github.com/MrWong99/kinoforge/pkg/types"
)

// Client adapts pkg/restclient to every component Backend interface.
type Client struct {
	rc *restclient.Client
}

// New wraps an already-configured restclient.Client.
func New(rc *restclient.Client) *Client {
	return &Client{rc: rc}
}

// --- sceneformat.Backend -----------------------------------------------

func (c *Client) Transcribe(ctx context.Context, projectID string) error {
	return c.rc.Post(ctx, fmt.Sprintf("/projects/%s/transcribe", projectID), nil, nil)
}

func (c *Client) Parse(ctx context.Context, projectID string) error {
	return c.rc.Post(ctx, fmt.Sprintf("/projects/%s/parse", projectID), nil, nil)
}

func (c *Client) Format(ctx context.Context, projectID string, mode types.SplitMode) (sceneformat.FormatStartResult, error) {
	var out sceneformat.FormatStartResult
	body := map[string]any{"split_mode": mode}
	err := c.rc.Post(ctx, fmt.Sprintf("/projects/%s/format", projectID), body, &out)
	return out, err
}

func (c *Client) BatchStatus(ctx context.Context, projectID, runID string) (sceneformat.BatchStatus, error) {
	var out sceneformat.BatchStatus
	path := fmt.Sprintf("/projects/%s/format/status?run_id=%s", projectID, runID)
	err := c.rc.Get(ctx, path, &out)
	return out, err
}

func (c *Client) ProjectStatus(ctx context.Context, projectID string) (types.ProjectStatus, error) {
	var out struct {
		Status types.ProjectStatus `json:"status"`
	}
	err := c.rc.Get(ctx, fmt.Sprintf("/projects/%s", projectID), &out)
	return out.Status, err
}

// --- bulkimage.Backend ---------------------------------------------------

func (c *Client) GenerateAll(ctx context.Context, projectID string) error {
	return c.rc.PostWithTimeout(ctx, fmt.Sprintf("/projects/%s/generate-all-images", projectID), nil, nil, restclient.BulkTimeout)
}

func (c *Client) GenerateScene(ctx context.Context, projectID, sceneID string) error {
	return c.rc.Post(ctx, fmt.Sprintf("/scenes/%s/generate-image", sceneID), nil, nil)
}

func (c *Client) SceneStatus(ctx context.Context, projectID, sceneID string) (supervisor.PollResult, error) {
	var out struct {
		Terminal bool   `json:"terminal"`
		Failed   bool   `json:"failed"`
		RunID    string `json:"run_id"`
	}
	err := c.rc.Get(ctx, fmt.Sprintf("/scenes/%s?view=board", sceneID), &out)
	if err != nil {
		return supervisor.PollResult{}, err
	}
	return supervisor.PollResult{Terminal: out.Terminal, Failed: out.Failed, RunID: out.RunID}, nil
}

func (c *Client) ProjectImageStatus(ctx context.Context, projectID string) (bulkimage.ProjectImageStatus, []string, error) {
	var out struct {
		Processed  int      `json:"processed"`
		Pending    int      `json:"pending"`
		Failed     int      `json:"failed"`
		Generating int      `json:"generating"`
		Done       bool     `json:"done"`
		Remaining  []string `json:"remaining_scene_ids"`
	}
	err := c.rc.Get(ctx, fmt.Sprintf("/projects/%s/generate-images/status", projectID), &out)
	if err != nil {
		return bulkimage.ProjectImageStatus{}, nil, err
	}
	status := bulkimage.ProjectImageStatus{
		Processed:  out.Processed,
		Pending:    out.Pending,
		Failed:     out.Failed,
		Generating: out.Generating,
		Done:       out.Done,
	}
	return status, out.Remaining, nil
}

func (c *Client) FinalizeBatch(ctx context.Context, projectID string) error {
	return c.rc.Post(ctx, fmt.Sprintf("/projects/%s/generate-images", projectID), nil, nil)
}

// --- bulkaudio.Backend ----------------------------------------------------

func (c *Client) StartJob(ctx context.Context, projectID string) (string, error) {
	var out struct {
		JobID string `json:"job_id"`
	}
	err := c.rc.Post(ctx, fmt.Sprintf("/projects/%s/audio/bulk-generate", projectID), nil, &out)
	return out.JobID, err
}

func (c *Client) JobStatus(ctx context.Context, projectID, jobID string) (bulkaudio.Status, error) {
	var out bulkaudio.Status
	path := fmt.Sprintf("/projects/%s/audio/bulk-status?job_id=%s", projectID, jobID)
	err := c.rc.Get(ctx, path, &out)
	return out, err
}

func (c *Client) ActiveJob(ctx context.Context, projectID string) (string, bool, error) {
	var out struct {
		JobID  string `json:"job_id"`
		Active bool   `json:"active"`
	}
	err := c.rc.Get(ctx, fmt.Sprintf("/projects/%s/audio/bulk-status", projectID), &out)
	return out.JobID, out.Active, err
}

func (c *Client) CancelJob(ctx context.Context, projectID, jobID string) error {
	body := map[string]any{"job_id": jobID}
	return c.rc.Post(ctx, fmt.Sprintf("/projects/%s/audio/bulk-cancel", projectID), body, nil)
}

// --- videobuild.Backend ---------------------------------------------------

func (c *Client) Submit(ctx context.Context, projectID string, payload videobuild.BuildSubmission) (types.VideoBuild, error) {
	var out types.VideoBuild
	err := c.rc.Post(ctx, fmt.Sprintf("/projects/%s/video-builds", projectID), payload, &out)
	return out, err
}

func (c *Client) Refresh(ctx context.Context, buildID string) (types.VideoBuild, error) {
	var out types.VideoBuild
	err := c.rc.Post(ctx, fmt.Sprintf("/video-builds/%s/refresh", buildID), nil, &out)
	return out, err
}

func (c *Client) List(ctx context.Context, projectID string) ([]types.VideoBuild, error) {
	var out []types.VideoBuild
	err := c.rc.Get(ctx, fmt.Sprintf("/projects/%s/video-builds", projectID), &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, buildID string) (types.VideoBuild, error) {
	var out types.VideoBuild
	err := c.rc.Get(ctx, fmt.Sprintf("/video-builds/%s", buildID), &out)
	return out, err
}

func (c *Client) RefreshDownloadURL(ctx context.Context, buildID string) (types.VideoBuild, error) {
	var out types.VideoBuild
	err := c.rc.Get(ctx, fmt.Sprintf("/video-builds/%s", buildID), &out)
	return out, err
}

// --- chatedit.Backend ------------------------------------------------------

func (c *Client) DryRun(ctx context.Context, projectID, userMessage string, intent chatedit.Intent, videoBuildID *string) (chatedit.DryRunResult, error) {
	var out chatedit.DryRunResult
	body := map[string]any{
		"user_message":   userMessage,
		"intent":         intent,
		"video_build_id": videoBuildID,
	}
	err := c.rc.Post(ctx, fmt.Sprintf("/projects/%s/chat-edits/dry-run", projectID), body, &out)
	return out, err
}

func (c *Client) Apply(ctx context.Context, projectID, patchRequestID string) (chatedit.ApplyResult, error) {
	var out chatedit.ApplyResult
	body := map[string]any{"patch_request_id": patchRequestID}
	err := c.rc.Post(ctx, fmt.Sprintf("/projects/%s/chat-edits/apply", projectID), body, &out)
	return out, err
}

// --- rebakecache.Backend ---------------------------------------------------

func (c *Client) FetchRebakeStatus(ctx context.Context, projectID string) (rebakecache.Snapshot, error) {
	var out rebakecache.Snapshot
	err := c.rc.Get(ctx, fmt.Sprintf("/projects/%s/comic/rebake-status", projectID), &out)
	return out, err
}

// --- sceneedit.Backend ------------------------------------------------------

func (c *Client) SaveEditContext(ctx context.Context, sceneID string, ec sceneedit.EditContext) error {
	return c.rc.Post(ctx, fmt.Sprintf("/scenes/%s/save-edit-context", sceneID), ec, nil)
}

func (c *Client) SaveMotion(ctx context.Context, sceneID, presetID string) error {
	if presetID == "" {
		return c.rc.Delete(ctx, fmt.Sprintf("/scenes/%s/motion", sceneID), nil)
	}
	body := map[string]any{"preset_id": presetID}
	return c.rc.Post(ctx, fmt.Sprintf("/scenes/%s/motion", sceneID), body, nil)
}

func (c *Client) SaveDuration(ctx context.Context, sceneID string, overrideMs *int) error {
	body := map[string]any{"duration_override_ms": overrideMs}
	return c.rc.Put(ctx, fmt.Sprintf("/scenes/%s", sceneID), body, nil)
}

func (c *Client) SaveBGM(ctx context.Context, sceneID string, bgm *sceneedit.SceneBGM) error {
	return c.rc.Put(ctx, fmt.Sprintf("/scenes/%s/audio-tracks", sceneID), bgm, nil)
}

func (c *Client) SaveSFX(ctx context.Context, sceneID string, cues []sceneedit.SFXCue) error {
	body := map[string]any{"sfx": cues}
	return c.rc.Put(ctx, fmt.Sprintf("/scenes/%s", sceneID), body, nil)
}
