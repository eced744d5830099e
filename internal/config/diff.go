package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged        bool
	NewLogLevel            string
	ChatEditLLMChanged     bool
	ChatEditFallbackChanged bool
	MCPServersChanged      bool
	MCPServerChanges       []MCPServerDiff // per-server diffs
	NotifyChanged          bool
}

// MCPServerDiff describes what changed for a single MCP server between two configs.
type MCPServerDiff struct {
	Name             string
	TransportChanged bool
	CommandChanged   bool
	URLChanged       bool
	Added            bool
	Removed          bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !reflect.DeepEqual(old.ChatEdit.LLM, new.ChatEdit.LLM) {
		d.ChatEditLLMChanged = true
	}
	if !reflect.DeepEqual(old.ChatEdit.FallbackLLM, new.ChatEdit.FallbackLLM) {
		d.ChatEditFallbackChanged = true
	}

	if old.Notify != new.Notify {
		d.NotifyChanged = true
	}

	// Build MCP server lookup maps keyed by name.
	oldServers := make(map[string]*MCPServerConfig, len(old.MCP.Servers))
	for i := range old.MCP.Servers {
		oldServers[old.MCP.Servers[i].Name] = &old.MCP.Servers[i]
	}
	newServers := make(map[string]*MCPServerConfig, len(new.MCP.Servers))
	for i := range new.MCP.Servers {
		newServers[new.MCP.Servers[i].Name] = &new.MCP.Servers[i]
	}

	// Detect modified and removed servers.
	for name, oldSrv := range oldServers {
		newSrv, exists := newServers[name]
		if !exists {
			d.MCPServerChanges = append(d.MCPServerChanges, MCPServerDiff{
				Name:    name,
				Removed: true,
			})
			d.MCPServersChanged = true
			continue
		}
		sd := diffMCPServer(name, oldSrv, newSrv)
		if sd.TransportChanged || sd.CommandChanged || sd.URLChanged {
			d.MCPServerChanges = append(d.MCPServerChanges, sd)
			d.MCPServersChanged = true
		}
	}

	// Detect added servers.
	for name := range newServers {
		if _, exists := oldServers[name]; !exists {
			d.MCPServerChanges = append(d.MCPServerChanges, MCPServerDiff{
				Name:  name,
				Added: true,
			})
			d.MCPServersChanged = true
		}
	}

	return d
}

// diffMCPServer compares two MCP server configs with the same name.
func diffMCPServer(name string, old, new *MCPServerConfig) MCPServerDiff {
	sd := MCPServerDiff{Name: name}

	if old.Transport != new.Transport {
		sd.TransportChanged = true
	}
	if old.Command != new.Command {
		sd.CommandChanged = true
	}
	if old.URL != new.URL {
		sd.URLChanged = true
	}

	return sd
}
