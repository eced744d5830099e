// Command glyphoxa is the main entry point for the Kinoforge orchestration
// engine: a long-running process that drives a multi-stage AI video
// production pipeline against a remote production backend, exposing a small
// JSON facade over HTTP for chat-edit, video build, and preflight.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/kinoforge/internal/chatedit"
	"github.com/MrWong99/kinoforge/internal/config"
	"github.com/MrWong99/kinoforge/internal/engine"
	"github.com/MrWong99/kinoforge/internal/health"
	"github.com/MrWong99/kinoforge/internal/mcp"
	"github.com/MrWong99/kinoforge/internal/observe"
	"github.com/MrWong99/kinoforge/internal/videobuild"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kinoforge: config file %q not found — pass -config with the path to a YAML configuration file\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kinoforge: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("kinoforge starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)
	printStartupSummary(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "kinoforge"})
	if err != nil {
		slog.Error("failed to initialise telemetry providers", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise engine", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			slog.SetDefault(newLogger(d.NewLogLevel))
			slog.Info("log level changed", "new_level", d.NewLogLevel)
		}
		if d.MCPServersChanged {
			slog.Info("mcp server list changed; restart required to pick up changes",
				"changes", d.MCPServerChanges)
		}
	})
	if err != nil {
		slog.Warn("config hot-reload watcher unavailable", "err", err)
	} else {
		defer watcher.Stop()
	}

	srv := newServer(cfg.Server.ListenAddr, eng)
	serveErrCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	slog.Info("engine ready — press Ctrl+C to shut down")

	select {
	case <-ctx.Done():
	case err := <-serveErrCh:
		if err != nil {
			slog.Error("http server error", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown error", "err", err)
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		slog.Error("engine shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── HTTP facade ──────────────────────────────────────────────────────────────

// newServer assembles the health endpoints and a small JSON facade over the
// chat-edit (C12), video build (C11), and preflight (C10) operations — the
// three components a headless client is most likely to drive directly.
// The rest of the sixteen components are reachable through eng's Go API for
// embedders that link against this process rather than talking HTTP to it.
func newServer(addr string, eng *engine.Engine) *http.Server {
	mux := http.NewServeMux()

	healthHandler := health.New(
		health.Checker{
			Name: "mcp",
			Check: func(ctx context.Context) error {
				_ = eng.MCPHost().AvailableTools(mcp.BudgetFast)
				return nil
			},
		},
	)
	healthHandler.Register(mux)

	mux.HandleFunc("POST /projects/{projectID}/chat-edits/dry-run", handleChatEditDryRun(eng))
	mux.HandleFunc("POST /projects/{projectID}/chat-edits/{patchRequestID}/apply", handleChatEditApply(eng))
	mux.HandleFunc("POST /projects/{projectID}/video-builds", handleVideoBuildSubmit(eng))
	mux.HandleFunc("GET /projects/{projectID}/preflight", handlePreflightGet(eng))

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics())(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type dryRunRequest struct {
	Message  string `json:"message"`
	SceneID  string `json:"scene_id"`
	SceneIdx int    `json:"scene_idx"`
}

func handleChatEditDryRun(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dryRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		var playback *chatedit.PlaybackContext
		if req.SceneID != "" {
			playback = &chatedit.PlaybackContext{SceneIdx: req.SceneIdx, SceneID: req.SceneID}
		}

		outcome, err := eng.ChatEdit().Classify(r.Context(), req.Message, playback)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}

		result, err := eng.ChatEdit().DryRun(r.Context(), r.PathValue("projectID"), outcome, nil)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}

		if err := eng.IndexChatEditMessage(r.Context(), r.PathValue("projectID"), result.PatchRequestID, req.Message); err != nil {
			slog.Warn("failed to index chat-edit message for few-shot retrieval", "err", err)
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func handleChatEditApply(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := eng.ChatEdit().Apply(r.Context(), r.PathValue("projectID"), r.PathValue("patchRequestID"))
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleVideoBuildSubmit(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload videobuild.BuildSubmission
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		build, err := eng.VideoBuild().Submit(r.Context(), r.PathValue("projectID"), payload)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusAccepted, build)
	}
}

func handlePreflightGet(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, ok := eng.Preflight().Get(r.PathValue("projectID"))
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("no cached preflight result for project"))
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        Kinoforge — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printField("Remote API", cfg.RemoteAPI.BaseURL)
	printField("Chat-edit LLM", cfg.ChatEdit.LLM.Name)
	printField("Fallback LLM", cfg.ChatEdit.FallbackLLM.Name)
	printField("Embeddings", cfg.Storage.Embeddings.Name)
	fmt.Printf("║  MCP servers     : %-19d ║\n", len(cfg.MCP.Servers))
	if cfg.Server.ListenAddr != "" {
		printField("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printField(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
