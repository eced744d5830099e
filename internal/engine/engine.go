// Package engine wires every orchestration component into one running
// process.
//
// The Engine struct owns the full lifecycle: New creates and connects all
// subsystems, Run blocks for the process lifetime, and Shutdown tears
// everything down in order.
//
// For testing, inject test doubles via functional options (WithBackend,
// WithMCPHost, etc.). When an option is not provided, New creates a real
// implementation from the config.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/kinoforge/internal/apibackend"
	"github.com/MrWong99/kinoforge/internal/builderwizard"
	"github.com/MrWong99/kinoforge/internal/bulkaudio"
	"github.com/MrWong99/kinoforge/internal/bulkimage"
	"github.com/MrWong99/kinoforge/internal/chatedit"
	"github.com/MrWong99/kinoforge/internal/chatedit/aiparse"
	"github.com/MrWong99/kinoforge/internal/chatedit/patchstore"
	"github.com/MrWong99/kinoforge/internal/chatedit/rules"
	"github.com/MrWong99/kinoforge/internal/config"
	"github.com/MrWong99/kinoforge/internal/mcp"
	"github.com/MrWong99/kinoforge/internal/mcp/mcphost"
	"github.com/MrWong99/kinoforge/internal/notify"
	"github.com/MrWong99/kinoforge/internal/observe"
	"github.com/MrWong99/kinoforge/internal/playback"
	"github.com/MrWong99/kinoforge/internal/preflight"
	"github.com/MrWong99/kinoforge/internal/projectstore"
	"github.com/MrWong99/kinoforge/internal/rebakecache"
	"github.com/MrWong99/kinoforge/internal/sceneedit"
	"github.com/MrWong99/kinoforge/internal/sceneformat"
	"github.com/MrWong99/kinoforge/internal/supervisor"
	"github.com/MrWong99/kinoforge/internal/uistate"
	"github.com/MrWong99/kinoforge/internal/videobuild"
	"github.com/MrWong99/kinoforge/internal/viewrouter"
	"github.com/MrWong99/kinoforge/pkg/provider/embeddings"
	"github.com/MrWong99/kinoforge/pkg/restclient"
	"github.com/MrWong99/kinoforge/pkg/types"
)

// Backend is the full set of remote operations every component drives,
// satisfied by a single [apibackend.Client] against one REST surface.
type Backend interface {
	bulkimage.Backend
	bulkaudio.Backend
	videobuild.Backend
	sceneformat.Backend
	chatedit.Backend
	rebakecache.Backend
	sceneedit.Backend
}

// Engine owns every subsystem's lifetime and coordinates the sixteen
// orchestration components against one project.
type Engine struct {
	cfg *config.Config

	backend  Backend
	registry *config.Registry

	pgPool  *pgxpool.Pool
	patches *patchstore.Store

	projects  *projectstore.Store
	jobs      *supervisor.Supervisor
	preflight *preflight.Cache

	bulkImages *bulkimage.Generator
	bulkAudio  *bulkaudio.Job
	videoBuild *videobuild.Controller
	format     *sceneformat.Orchestrator
	chatEdit   *chatedit.Pipeline
	rebake     *rebakecache.Cache

	buttons  *uistate.ButtonRegistry
	notifier *uistate.Notifier
	router   *viewrouter.Router

	mcpHost mcp.Host
	discord *notify.Discord

	embedder embeddings.Provider

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*Engine)

// WithBackend injects a Backend instead of building one from config.RemoteAPI.
func WithBackend(b Backend) Option {
	return func(e *Engine) { e.backend = b }
}

// WithMCPHost injects an MCP host instead of creating one from config.
func WithMCPHost(h mcp.Host) Option {
	return func(e *Engine) { e.mcpHost = h }
}

// WithPatchStore injects a patch store instead of connecting to Postgres.
func WithPatchStore(s *patchstore.Store) Option {
	return func(e *Engine) { e.patches = s }
}

// WithRegistry injects a provider registry instead of the default empty one.
func WithRegistry(r *config.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// New wires every subsystem together from cfg. Use Option functions to
// inject test doubles for any subsystem; New only builds what was not
// already supplied.
//
// New performs all initialisation synchronously: REST client construction,
// Postgres connection + migration, provider registry population, MCP host
// setup and builtin tool registration, and component construction.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{cfg: cfg}
	for _, o := range opts {
		o(e)
	}

	if err := e.initBackend(); err != nil {
		return nil, fmt.Errorf("engine: init backend: %w", err)
	}
	if err := e.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("engine: init storage: %w", err)
	}
	if err := e.initProviders(); err != nil {
		return nil, fmt.Errorf("engine: init providers: %w", err)
	}
	if err := e.initMCP(ctx); err != nil {
		return nil, fmt.Errorf("engine: init mcp: %w", err)
	}

	e.initCore()
	e.initComponents()

	if err := e.initNotify(ctx); err != nil {
		return nil, fmt.Errorf("engine: init notify: %w", err)
	}

	return e, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initBackend builds the REST client and apibackend adapter unless a
// Backend was already injected.
func (e *Engine) initBackend() error {
	if e.backend != nil {
		return nil
	}

	timeout := restclientTimeout(e.cfg.RemoteAPI.RequestTimeoutSeconds)
	rc, err := restclient.New(e.cfg.RemoteAPI.BaseURL,
		restclient.WithAPIKey(e.cfg.RemoteAPI.APIKey),
		restclient.WithTimeout(timeout),
		restclient.WithMetrics(observe.DefaultMetrics()),
	)
	if err != nil {
		return fmt.Errorf("create rest client: %w", err)
	}
	e.backend = apibackend.New(rc)
	return nil
}

// initStorage connects to Postgres and runs the patch-history migration
// unless a patch store was already injected.
func (e *Engine) initStorage(ctx context.Context) error {
	if e.patches != nil {
		return nil
	}
	dsn := e.cfg.Storage.PostgresDSN
	if dsn == "" {
		slog.Warn("storage.postgres_dsn is empty; chat-edit patch history will not be durable")
		return nil
	}

	pgCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return fmt.Errorf("parse postgres dsn: %w", err)
	}
	pgCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		return fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}

	dims := e.cfg.Storage.EmbeddingDimensions
	if dims == 0 {
		dims = 1536 // sensible default for OpenAI text-embedding-3-small
	}
	if err := patchstore.Migrate(ctx, pool, dims); err != nil {
		pool.Close()
		return fmt.Errorf("migrate patch store: %w", err)
	}

	e.pgPool = pool
	e.patches = patchstore.New(pool)
	e.closers = append(e.closers, func() error {
		pool.Close()
		return nil
	})
	return nil
}

// initProviders populates the provider registry with the known factories and
// instantiates the embeddings provider used to index chat-edit messages.
func (e *Engine) initProviders() error {
	if e.registry == nil {
		e.registry = config.NewRegistry()
		registerProviderFactories(e.registry)
	}

	if e.patches == nil || e.cfg.Storage.Embeddings.Name == "" {
		return nil
	}
	emb, err := e.registry.CreateEmbeddings(e.cfg.Storage.Embeddings)
	if err != nil {
		return fmt.Errorf("create embeddings provider %q: %w", e.cfg.Storage.Embeddings.Name, err)
	}
	e.embedder = emb
	return nil
}

// initMCP creates the MCP host unless injected, registers configured
// external servers, and exposes the chat-edit dry-run/apply operations as
// builtin tools when cfg.MCP.ExposeTools is set.
func (e *Engine) initMCP(ctx context.Context) error {
	if e.mcpHost == nil {
		e.mcpHost = mcphost.New()
	}
	e.closers = append(e.closers, e.mcpHost.Close)

	for _, srv := range e.cfg.MCP.Servers {
		serverCfg := mcp.ServerConfig{
			Name:      srv.Name,
			Transport: srv.Transport,
			Command:   srv.Command,
			URL:       srv.URL,
			Env:       srv.Env,
		}
		if err := e.mcpHost.RegisterServer(ctx, serverCfg); err != nil {
			return fmt.Errorf("register mcp server %q: %w", srv.Name, err)
		}
		slog.Info("registered MCP server", "name", srv.Name)
	}

	if err := e.mcpHost.Calibrate(ctx); err != nil {
		slog.Warn("MCP calibration failed, using declared latencies", "err", err)
	}

	if e.cfg.MCP.ExposeTools {
		if host, ok := e.mcpHost.(*mcphost.Host); ok {
			registerChatEditTools(host, e)
		} else {
			slog.Warn("mcp.expose_tools is set but the injected host does not support builtin tools")
		}
	}

	return nil
}

// initCore builds the process-wide state every component shares: the
// current-project reference, the job supervisor, and the preflight cache.
func (e *Engine) initCore() {
	e.projects = projectstore.New()
	e.jobs = supervisor.New()
	e.preflight = preflight.NewCache()
	e.buttons = uistate.NewButtonRegistry()
	e.router = viewrouter.New()
	e.notifier = uistate.NewNotifier(func(uistate.Toast) {})
}

// initComponents constructs the backend-driven components (bulk image, bulk
// audio, video build, scene format, rebake cache, and chat edit), wiring
// the chat-edit parser pair from config.ChatEdit and falling back to the
// rule parser alone when no LLM provider is configured.
func (e *Engine) initComponents() {
	e.bulkImages = bulkimage.New(e.backend, e.jobs)
	e.bulkAudio = bulkaudio.New(e.backend, e.jobs)
	e.videoBuild = videobuild.New(e.backend)
	e.format = sceneformat.New(e.backend, e.jobs)
	e.rebake = rebakecache.New(e.backend)

	aiParser := e.buildAIParser()
	e.chatEdit = chatedit.New(e.backend, rules.Parse, aiParser)
}

// buildAIParser instantiates the AI-parse fallback from the configured
// chat-edit LLM provider. A provider construction failure is logged and the
// AI fallback degrades to "no actions found" rather than failing Engine
// construction, since the deterministic rule parser still covers the
// common cases on its own.
func (e *Engine) buildAIParser() chatedit.AIParser {
	entry := e.cfg.ChatEdit.LLM
	if entry.Name == "" {
		return func(context.Context, string, string) ([]chatedit.Action, error) { return nil, nil }
	}

	provider, err := e.registry.CreateLLM(entry)
	if err != nil {
		slog.Warn("chat-edit LLM provider unavailable, AI-parse fallback disabled", "provider", entry.Name, "err", err)
		return func(context.Context, string, string) ([]chatedit.Action, error) { return nil, nil }
	}

	fallbackEntry := e.cfg.ChatEdit.FallbackLLM
	if fallbackEntry.Name == "" {
		return aiparse.New(provider).Parse
	}

	fallbackProvider, err := e.registry.CreateLLM(fallbackEntry)
	if err != nil {
		slog.Warn("chat-edit fallback LLM provider unavailable, using primary only", "provider", fallbackEntry.Name, "err", err)
		return aiparse.New(provider).Parse
	}

	primary := aiparse.New(provider)
	fallback := aiparse.New(fallbackProvider)
	return func(ctx context.Context, message, playbackContext string) ([]chatedit.Action, error) {
		actions, err := primary.Parse(ctx, message, playbackContext)
		if err != nil {
			slog.Warn("chat-edit AI parse failed on primary provider, retrying with fallback", "err", err)
			return fallback.Parse(ctx, message, playbackContext)
		}
		return actions, nil
	}
}

// initNotify constructs the optional Discord completion notifier.
func (e *Engine) initNotify(ctx context.Context) error {
	if e.discord != nil || !e.cfg.Notify.Discord.Enabled {
		return nil
	}
	d, err := notify.New(ctx, notify.Config{
		Token:     e.cfg.Notify.Discord.Token,
		ChannelID: e.cfg.Notify.Discord.ChannelID,
	})
	if err != nil {
		return fmt.Errorf("create discord notifier: %w", err)
	}
	e.discord = d
	e.closers = append(e.closers, d.Close)
	return nil
}

// ─── Accessors ───────────────────────────────────────────────────────────────

func (e *Engine) Projects() *projectstore.Store          { return e.projects }
func (e *Engine) Jobs() *supervisor.Supervisor           { return e.jobs }
func (e *Engine) Preflight() *preflight.Cache            { return e.preflight }
func (e *Engine) BulkImages() *bulkimage.Generator       { return e.bulkImages }
func (e *Engine) BulkAudio() *bulkaudio.Job              { return e.bulkAudio }
func (e *Engine) VideoBuild() *videobuild.Controller     { return e.videoBuild }
func (e *Engine) SceneFormat() *sceneformat.Orchestrator { return e.format }
func (e *Engine) ChatEdit() *chatedit.Pipeline           { return e.chatEdit }
func (e *Engine) Rebake() *rebakecache.Cache             { return e.rebake }
func (e *Engine) Buttons() *uistate.ButtonRegistry       { return e.buttons }
func (e *Engine) Notifier() *uistate.Notifier            { return e.notifier }
func (e *Engine) Router() *viewrouter.Router             { return e.router }
func (e *Engine) MCPHost() mcp.Host                      { return e.mcpHost }

// OpenSceneEdit starts a new sceneedit.Transaction against the current
// backend for one scene. Unlike the process-wide components above, a
// transaction is scoped to a single open editor panel, so the Engine hands
// out a new value per call rather than storing one.
func (e *Engine) OpenSceneEdit(sceneID string, openSource sceneedit.OpenSource, initial sceneedit.EditContext, motion string, duration *int, bgm *sceneedit.SceneBGM, sfx []sceneedit.SFXCue) *sceneedit.Transaction {
	return sceneedit.New(sceneID, e.backend, openSource, initial, motion, duration, bgm, sfx)
}

// Wizard projects the given preflight result into the builder wizard's
// per-step readiness view.
func (e *Engine) Wizard(result preflight.Result) builderwizard.Wizard {
	return builderwizard.Project(result)
}

// PlaybackTracker returns a fresh playback position tracker for scenes.
// Like OpenSceneEdit, this is per-tab state rather than a shared singleton.
func (e *Engine) PlaybackTracker(scenes []types.Scene) *playback.Tracker {
	return playback.New(scenes)
}

// IndexChatEditMessage embeds message and stores it for future few-shot
// retrieval by the AI-parse fallback. A no-op when no embeddings provider
// or patch store is configured.
func (e *Engine) IndexChatEditMessage(ctx context.Context, projectID, patchRequestID, message string) error {
	if e.embedder == nil || e.patches == nil {
		return nil
	}
	vec, err := e.embedder.Embed(ctx, message)
	if err != nil {
		return fmt.Errorf("engine: embed chat-edit message: %w", err)
	}
	return e.patches.IndexMessage(ctx, projectID, patchRequestID, message, vec)
}

// SimilarChatEditMessages returns past user messages whose embeddings are
// closest to message, for use as few-shot examples. Returns an empty slice
// when no embeddings provider or patch store is configured.
func (e *Engine) SimilarChatEditMessages(ctx context.Context, projectID, message string, topK int) ([]patchstore.SimilarExample, error) {
	if e.embedder == nil || e.patches == nil {
		return nil, nil
	}
	vec, err := e.embedder.Embed(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("engine: embed query message: %w", err)
	}
	return e.patches.FindSimilarMessages(ctx, projectID, vec, topK)
}

// Patches returns the durable patch-history store. May be nil if storage is
// not configured.
func (e *Engine) Patches() *patchstore.Store { return e.patches }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run blocks until ctx is cancelled. Every component operation is driven by
// incoming HTTP requests rather than a background loop, so Run's only job is
// to hold the process open and report why it stopped.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine running", "remote_api", e.cfg.RemoteAPI.BaseURL)
	<-ctx.Done()
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in the order they were initialised. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (e *Engine) Shutdown(ctx context.Context) error {
	var shutdownErr error
	e.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(e.closers))
		for i, closer := range e.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(e.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
