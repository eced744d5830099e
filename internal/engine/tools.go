package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/kinoforge/internal/chatedit"
	"github.com/MrWong99/kinoforge/internal/mcp/mcphost"
	"github.com/MrWong99/kinoforge/pkg/provider/llm"
)

// llmToolDefinition builds a [llm.ToolDefinition] for a builtin tool. The
// tool's duration estimates are declared on the mcphost.BuiltinTool itself;
// mcphost.Host.Calibrate refines the tier assignment once real latencies are
// observed.
func llmToolDefinition(name, description string, parameters map[string]any) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  parameters,
	}
}

// registerChatEditTools exposes the chat-edit pipeline's dry-run and apply
// operations as builtin MCP tools, so an external LLM-driven orchestrator
// (or this engine's own tool-calling loop) can invoke them the same way it
// would invoke any other MCP server's tools.
func registerChatEditTools(host *mcphost.Host, e *Engine) {
	dryRunTool := mcphost.BuiltinTool{
		Definition: llmToolDefinition(
			"chat_edit_dry_run",
			"Classify a user's chat-edit message and compute the resulting changes without applying them.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_id": map[string]any{"type": "string"},
					"message":    map[string]any{"type": "string"},
					"scene_id":   map[string]any{"type": "string"},
					"scene_idx":  map[string]any{"type": "integer"},
				},
				"required": []string{"project_id", "message"},
			},
		),
		Handler:     e.handleChatEditDryRun,
		DeclaredP50: 800,
		DeclaredMax: 5000,
	}

	applyTool := mcphost.BuiltinTool{
		Definition: llmToolDefinition(
			"chat_edit_apply",
			"Apply a previously dry-run chat-edit patch request.",
			map[string]any{
				"type": "object",
				"properties": map[string]any{
					"project_id":       map[string]any{"type": "string"},
					"patch_request_id": map[string]any{"type": "string"},
				},
				"required": []string{"project_id", "patch_request_id"},
			},
		),
		Handler:     e.handleChatEditApply,
		DeclaredP50: 400,
		DeclaredMax: 3000,
	}

	if err := host.RegisterBuiltin(dryRunTool); err != nil {
		panic(fmt.Sprintf("engine: register chat_edit_dry_run: %v", err))
	}
	if err := host.RegisterBuiltin(applyTool); err != nil {
		panic(fmt.Sprintf("engine: register chat_edit_apply: %v", err))
	}
}

type dryRunArgs struct {
	ProjectID string `json:"project_id"`
	Message   string `json:"message"`
	SceneID   string `json:"scene_id"`
	SceneIdx  int    `json:"scene_idx"`
}

func (e *Engine) handleChatEditDryRun(ctx context.Context, args string) (string, error) {
	var a dryRunArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("chat_edit_dry_run: decode args: %w", err)
	}

	var playback *chatedit.PlaybackContext
	if a.SceneID != "" {
		playback = &chatedit.PlaybackContext{SceneIdx: a.SceneIdx, SceneID: a.SceneID}
	}

	outcome, err := e.chatEdit.Classify(ctx, a.Message, playback)
	if err != nil {
		return "", fmt.Errorf("chat_edit_dry_run: classify: %w", err)
	}

	result, err := e.chatEdit.DryRun(ctx, a.ProjectID, outcome, nil)
	if err != nil {
		return "", fmt.Errorf("chat_edit_dry_run: dry run: %w", err)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("chat_edit_dry_run: encode result: %w", err)
	}
	return string(out), nil
}

type applyArgs struct {
	ProjectID      string `json:"project_id"`
	PatchRequestID string `json:"patch_request_id"`
}

func (e *Engine) handleChatEditApply(ctx context.Context, args string) (string, error) {
	var a applyArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("chat_edit_apply: decode args: %w", err)
	}

	result, err := e.chatEdit.Apply(ctx, a.ProjectID, a.PatchRequestID)
	if err != nil {
		return "", fmt.Errorf("chat_edit_apply: apply: %w", err)
	}

	out, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("chat_edit_apply: encode result: %w", err)
	}
	return string(out), nil
}
