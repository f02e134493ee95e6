//go:build !sharkd_no_shark

package plugins

import (
	"github.com/joshp123/sharkd/internal/config"
	"github.com/joshp123/sharkd/internal/core"
	"github.com/joshp123/sharkd/plugins/shark"
)

func init() {
	Register("shark", func(cfg *config.Config, deps Deps) (core.Plugin, bool) {
		sharkDeps := shark.Deps{Blob: deps.Blob, Publisher: deps.Publisher}
		if deps.Session != nil {
			sharkDeps.Tokens = deps.Session
		}
		plugin, ok := shark.NewPlugin(cfg, sharkDeps)
		if !ok {
			return nil, false
		}
		return plugin, true
	})
}
