package plugins

import (
	"github.com/joshp123/sharkd/internal/blob"
	"github.com/joshp123/sharkd/internal/config"
	"github.com/joshp123/sharkd/internal/core"
	"github.com/joshp123/sharkd/internal/publish"
	"github.com/joshp123/sharkd/internal/session"
)

// Deps are the process-wide services handed to every factory.
type Deps struct {
	Session   *session.Manager
	Blob      blob.Store
	Publisher publish.Publisher
}

// Factory builds a plugin instance from the loaded config.
type Factory func(*config.Config, Deps) (core.Plugin, bool)

type entry struct {
	id      string
	factory Factory
}

var compiled []entry

// Register adds a compiled-in plugin factory to the registry.
func Register(id string, factory Factory) {
	compiled = append(compiled, entry{id: id, factory: factory})
}

// Compiled returns the configured plugin instances for this build.
func Compiled(cfg *config.Config, deps Deps) []core.Plugin {
	if cfg == nil {
		return nil
	}
	out := make([]core.Plugin, 0, len(compiled))
	for _, e := range compiled {
		plugin, ok := e.factory(cfg, deps)
		if !ok {
			continue
		}
		out = append(out, plugin)
	}
	return out
}

// Enabled lists the plugin ids that have a config section.
func Enabled(cfg *config.Config) map[string]bool {
	enabled := make(map[string]bool)
	if cfg == nil {
		return enabled
	}
	if cfg.Shark != nil {
		enabled["shark"] = true
	}
	return enabled
}

// IDs lists the compiled-in plugin ids in registration order.
func IDs() []string {
	out := make([]string, 0, len(compiled))
	for _, e := range compiled {
		out = append(out, e.id)
	}
	return out
}
