// Package types defines the shared data model used across all kinoforge packages.
//
// These types form the lingua franca between the REST client, the store, the
// supervisor, and every orchestration component. They mirror the server's
// authoritative records; this process only ever holds short-lived mirror
// copies, never the source of truth.
package types

import "time"

// SourceType identifies how a project's source material was ingested.
type SourceType string

const (
	SourceText  SourceType = "text"
	SourceAudio SourceType = "audio"
)

// SplitMode is the canonical (server-facing) scene segmentation strategy.
// The ingress boundary accepts the legacy raw/optimized vocabulary and
// normalizes it to these values; see sceneformat.NormalizeSplitMode.
type SplitMode string

const (
	SplitPreserve SplitMode = "preserve"
	SplitAI       SplitMode = "ai"
)

// ProjectStatus enumerates the monotonic lifecycle a project advances
// through, plus the off-to-the-side Failed status.
type ProjectStatus string

const (
	StatusCreated         ProjectStatus = "created"
	StatusUploaded        ProjectStatus = "uploaded"
	StatusTranscribing    ProjectStatus = "transcribing"
	StatusTranscribed     ProjectStatus = "transcribed"
	StatusParsing         ProjectStatus = "parsing"
	StatusParsed          ProjectStatus = "parsed"
	StatusFormatting      ProjectStatus = "formatting"
	StatusFormatted       ProjectStatus = "formatted"
	StatusGeneratingImage ProjectStatus = "generating_images"
	StatusCompleted       ProjectStatus = "completed"
	StatusFailed          ProjectStatus = "failed"
)

// OutputPreset identifies a target aspect-ratio/platform rendering profile.
type OutputPreset string

const (
	PresetYTLong       OutputPreset = "yt_long"
	PresetShortVert    OutputPreset = "short_vertical"
	PresetYTShorts     OutputPreset = "yt_shorts"
	PresetReels        OutputPreset = "reels"
	PresetTikTok       OutputPreset = "tiktok"
)

// Project is the root entity driving the pipeline. It is created once and
// its Status advances monotonically except via an explicit reset.
type Project struct {
	ID                 string
	Title              string
	SourceType         SourceType
	SourceText         *string
	Status             ProjectStatus
	SplitMode          SplitMode
	TargetSceneCount   int // [1,200]
	Settings           ProjectSettings
	OutputPreset       OutputPreset
	NarrationVoiceOverride *string
}

// ProjectSettings is the nested configuration object carried on a Project.
type ProjectSettings struct {
	Telops TelopSettings
	BGM    ProjectBGM
}

// TelopSettings configures the project-wide (and optionally scene-level)
// caption/telop overlay.
type TelopSettings struct {
	Enabled        bool
	StylePreset    string
	SizePreset     string
	PositionPreset string
	CustomStyle    *TelopCustomStyle
	Typography     *TelopTypography
}

// TelopCustomStyle overrides the telop style preset's visual parameters.
type TelopCustomStyle struct {
	TextColor   string
	StrokeColor string
	StrokeWidth float64
	BGColor     string
	BGOpacity   float64
	FontFamily  string
	FontWeight  string
}

// TelopTypography controls line wrapping behavior for burned-in captions.
type TelopTypography struct {
	MaxLines      int
	LineHeight    float64
	LetterSpacing float64
	OverflowMode  string
}

// ProjectBGM describes the project-wide background music assignment.
type ProjectBGM struct {
	Enabled bool
	Volume  float64 // [0,1]
}

// SceneRole tags a scene's story-function.
type SceneRole string

// DisplayAssetType is the kind of asset currently adopted for display on a scene.
type DisplayAssetType string

const (
	AssetImage DisplayAssetType = "image"
	AssetComic DisplayAssetType = "comic"
	AssetVideo DisplayAssetType = "video"
)

// TextRenderMode controls how caption text is composited for a scene.
type TextRenderMode string

const (
	RenderBaked    TextRenderMode = "baked"
	RenderRemotion TextRenderMode = "remotion"
	RenderNone     TextRenderMode = "none"
)

// Scene is a single story beat within a Project.
type Scene struct {
	ID                 string
	Idx                int // 1-based, dense within visible scenes; negative when hidden
	Role               SceneRole
	Title              string
	Dialogue           string
	Bullets            []string
	ImagePrompt        string
	StylePresetID      *string
	DisplayAssetType   DisplayAssetType
	TextRenderMode     TextRenderMode
	DurationOverrideMs *int
	ChunkID            *string // nil marks a manually-added scene, preserved across resets
	HiddenAt           *time.Time

	// Derived/joined fields, populated by the store from related REST calls.
	ActiveImage    *Generation
	ActiveComic    *Generation
	ActiveVideo    *Generation
	LatestImage    *Generation
	Characters     []string // assigned image character keys, max 3
	VoiceCharacter *string
	Utterances     []Utterance
	UtteranceStatus UtteranceStatus
	BGM            *SceneBGM
	SFX            []SFXCue
	MotionPresetID string
	SpeakerSummary string
}

// IsVisible reports whether the scene participates in the visible ordering.
func (s Scene) IsVisible() bool { return s.HiddenAt == nil && s.Idx > 0 }

// GenerationStatus is the lifecycle of a single image/audio/video attempt.
type GenerationStatus string

const (
	GenPending    GenerationStatus = "pending"
	GenGenerating GenerationStatus = "generating"
	GenCompleted  GenerationStatus = "completed"
	GenFailed     GenerationStatus = "failed"
)

// Generation is a single attempt record for an image, audio, or video asset.
// Completed generations with R2URL set are the only ones eligible for
// adoption or download.
type Generation struct {
	ID        string
	SceneID   string
	Status    GenerationStatus
	R2URL     *string
	Prompt    string
	ModelOrVoicePresetID string
	Provider  string
	ErrorMessage *string
	CreatedAt time.Time
	IsActive  bool
	RunID     *string // correlation token for the job that produced this attempt
}

// Utterance is a single speaker-tagged line within a scene's dialogue.
type Utterance struct {
	ID          string
	SceneID     string
	Line        int
	Speaker     string
	Text        string
	HasAudio    bool
	DurationMs  int
}

// UtteranceStatus summarizes voice-generation completeness for a scene.
type UtteranceStatus struct {
	Total           int
	WithAudio       int
	TotalDurationMs int
	IsReady         bool
}

// SceneBGM is a per-scene background music assignment, overriding the
// project-wide BGM for the duration of the scene.
type SceneBGM struct {
	TrackID        string
	StartMs        int
	EndMs          int
	VolumeOverride *float64
	LoopOverride   *bool
}

// SFXCue is a single ordered sound-effect placement within a scene.
type SFXCue struct {
	Name          string
	StartMs       int
	EndMs         *int
	Volume        float64
	Loop          bool
	R2URL         string
	DisplayNumber int // 1-based within-scene index referenced by chat-edit
}

// VideoBuildStatus enumerates the lifecycle of a final render submission.
type VideoBuildStatus string

const (
	BuildQueued     VideoBuildStatus = "queued"
	BuildValidating VideoBuildStatus = "validating"
	BuildSubmitted  VideoBuildStatus = "submitted"
	BuildRendering  VideoBuildStatus = "rendering"
	BuildUploading  VideoBuildStatus = "uploading"
	BuildRetryWait  VideoBuildStatus = "retry_wait"
	BuildCompleted  VideoBuildStatus = "completed"
	BuildFailed     VideoBuildStatus = "failed"
	BuildCancelled  VideoBuildStatus = "cancelled"
)

// ActivePollingStatuses are the VideoBuildStatus values the controller keeps
// polling; retry_wait is deliberately excluded (the server cron retries it).
var ActivePollingStatuses = map[VideoBuildStatus]bool{
	BuildQueued:     true,
	BuildValidating: true,
	BuildSubmitted:  true,
	BuildRendering:  true,
	BuildUploading:  true,
}

// ExpressionSummary tallies which expressive elements a build carries.
type ExpressionSummary struct {
	HasVoice             bool   `json:"has_voice"`
	HasBGM               bool   `json:"has_bgm"`
	HasSFX               bool   `json:"has_sfx"`
	IsSilent             bool   `json:"is_silent"`
	BalloonCount         int    `json:"balloon_count"`
	BalloonPolicySummary string `json:"balloon_policy_summary"`
}

// VideoBuild is a single final-render submission and its progress record.
type VideoBuild struct {
	ID                    string            `json:"id"`
	ProjectID             string            `json:"project_id"`
	Status                VideoBuildStatus  `json:"status"`
	ProgressPercent       int               `json:"progress_percent"`
	ProgressStage         string            `json:"progress_stage"`
	SettingsJSON          string            `json:"settings_json"` // immutable submission snapshot
	ExpressionSummary     ExpressionSummary `json:"expression_summary"`
	DownloadURL           *string           `json:"download_url"`
	RenderStartedAt       *time.Time        `json:"render_started_at"`
	RenderCompletedAt     *time.Time        `json:"render_completed_at"`
	RetryCount            int               `json:"retry_count"`
	ErrorCode             *string           `json:"error_code"`
	ErrorMessage          *string           `json:"error_message"`
	GeneratedVideoBuildID *string           `json:"generated_video_build_id"`
	CreatedAt             time.Time         `json:"created_at"`
}

// IsActivePolling reports whether this build's status is one the controller
// should keep polling.
func (b VideoBuild) IsActivePolling() bool { return ActivePollingStatuses[b.Status] }

// PatchStatus is the lifecycle of a single chat-edit patch request.
type PatchStatus string

const (
	PatchDraft        PatchStatus = "draft"
	PatchDryRunOK     PatchStatus = "dry_run_ok"
	PatchDryRunFailed PatchStatus = "dry_run_failed"
	PatchApplyOK      PatchStatus = "apply_ok"
	PatchApplyFailed  PatchStatus = "apply_failed"
)

// PatchRequest records one chat-edit attempt end to end.
type PatchRequest struct {
	ID                    string
	UserMessage           string
	OpsJSON               string
	Source                string
	Status                PatchStatus
	GeneratedVideoBuildID *string
	CreatedAt             time.Time
}

// Message represents a single message in an LLM conversation history, shared
// across the llm provider abstraction and the chat-edit AI-parse fallback.
type Message struct {
	Role       string // "system", "user", "assistant", or "tool"
	Content    string
	Name       string
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // JSON-encoded
}

// ToolDefinition describes a tool that can be offered to an LLM.
type ToolDefinition struct {
	Name                string
	Description         string
	Parameters          map[string]any
	EstimatedDurationMs int
	MaxDurationMs       int
	Idempotent          bool
	CacheableSeconds    int
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	ContextWindow       int
	MaxOutputTokens     int
	SupportsToolCalling bool
	SupportsVision      bool
	SupportsStreaming   bool
}
