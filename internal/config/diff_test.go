package config_test

import (
	"testing"

	"github.com/MrWong99/kinoforge/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: "info"},
		MCP: config.MCPConfig{
			Servers: []config.MCPServerConfig{
				{Name: "tools", Transport: "stdio", Command: "/bin/tools"},
			},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.MCPServersChanged {
		t.Error("expected MCPServersChanged=false for identical configs")
	}
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if len(d.MCPServerChanges) != 0 {
		t.Errorf("expected 0 MCP server changes, got %d", len(d.MCPServerChanges))
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: "info"}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: "debug"}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != "debug" {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_ChatEditLLMChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{ChatEdit: config.ChatEditConfig{LLM: config.ProviderEntry{Name: "openai"}}}
	new := &config.Config{ChatEdit: config.ChatEditConfig{LLM: config.ProviderEntry{Name: "anyllm"}}}

	d := config.Diff(old, new)
	if !d.ChatEditLLMChanged {
		t.Error("expected ChatEditLLMChanged=true")
	}
	if d.ChatEditFallbackChanged {
		t.Error("expected ChatEditFallbackChanged=false")
	}
}

func TestDiff_NotifyChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Notify: config.NotifyConfig{Discord: config.DiscordNotifyConfig{Enabled: false}}}
	new := &config.Config{Notify: config.NotifyConfig{Discord: config.DiscordNotifyConfig{Enabled: true, Token: "t", ChannelID: "c"}}}

	d := config.Diff(old, new)
	if !d.NotifyChanged {
		t.Error("expected NotifyChanged=true")
	}
}

func TestDiff_MCPServerTransportChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{{Name: "tools", Transport: "stdio", Command: "/bin/a"}}},
	}
	new := &config.Config{
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{{Name: "tools", Transport: "stdio", Command: "/bin/b"}}},
	}

	d := config.Diff(old, new)
	if !d.MCPServersChanged {
		t.Error("expected MCPServersChanged=true")
	}
	found := false
	for _, sc := range d.MCPServerChanges {
		if sc.Name == "tools" && sc.CommandChanged {
			found = true
		}
	}
	if !found {
		t.Error("expected tools CommandChanged=true")
	}
}

func TestDiff_MCPServerAdded(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{{Name: "tools"}}},
	}
	new := &config.Config{
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{{Name: "tools"}, {Name: "web"}}},
	}

	d := config.Diff(old, new)
	if !d.MCPServersChanged {
		t.Error("expected MCPServersChanged=true")
	}
	found := false
	for _, sc := range d.MCPServerChanges {
		if sc.Name == "web" && sc.Added {
			found = true
		}
	}
	if !found {
		t.Error("expected web Added=true")
	}
}

func TestDiff_MCPServerRemoved(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{{Name: "tools"}, {Name: "web"}}},
	}
	new := &config.Config{
		MCP: config.MCPConfig{Servers: []config.MCPServerConfig{{Name: "tools"}}},
	}

	d := config.Diff(old, new)
	if !d.MCPServersChanged {
		t.Error("expected MCPServersChanged=true")
	}
	found := false
	for _, sc := range d.MCPServerChanges {
		if sc.Name == "web" && sc.Removed {
			found = true
		}
	}
	if !found {
		t.Error("expected web Removed=true")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server: config.ServerConfig{LogLevel: "info"},
		MCP: config.MCPConfig{
			Servers: []config.MCPServerConfig{
				{Name: "tools", Command: "/bin/a"},
				{Name: "web"},
			},
		},
	}
	new := &config.Config{
		Server: config.ServerConfig{LogLevel: "warn"},
		MCP: config.MCPConfig{
			Servers: []config.MCPServerConfig{
				{Name: "tools", Command: "/bin/b"},
				{Name: "extra"},
			},
		},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.MCPServersChanged {
		t.Error("expected MCPServersChanged=true")
	}
	changes := make(map[string]config.MCPServerDiff)
	for _, sc := range d.MCPServerChanges {
		changes[sc.Name] = sc
	}
	if !changes["tools"].CommandChanged {
		t.Error("expected tools CommandChanged=true")
	}
	if !changes["web"].Removed {
		t.Error("expected web Removed=true")
	}
	if !changes["extra"].Added {
		t.Error("expected extra Added=true")
	}
}
