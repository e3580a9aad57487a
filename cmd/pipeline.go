package cmd

import (
	"fmt"
	"sync/atomic"

	"github.com/rubiojr/theme-switcher/pkg/config"
	"github.com/rubiojr/theme-switcher/pkg/dispatch"
	"github.com/rubiojr/theme-switcher/pkg/ipc"
	"github.com/rubiojr/theme-switcher/pkg/log"
	"github.com/rubiojr/theme-switcher/pkg/script"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// pipeline forwards source callbacks to the active dispatcher. A reload
// swaps in a freshly built dispatcher; each dispatcher's consumer set is
// fixed once it runs.
type pipeline struct {
	current atomic.Pointer[dispatch.Dispatcher]
}

func (p *pipeline) dispatch(t theme.Theme) {
	if d := p.current.Load(); d != nil {
		d.Dispatch(t)
	}
}

func (p *pipeline) swap(d *dispatch.Dispatcher) {
	p.current.Store(d)
}

// buildDispatcher registers, in order: the logging consumer (unless quiet),
// the IPC broadcast consumer, the shell script consumer and the JS
// consumer. Scripts given on the command line run before configured ones.
func buildDispatcher(cfg *config.Config, opts runOptions, server *ipc.Server) (*dispatch.Dispatcher, error) {
	d := dispatch.New()
	logger := log.ForService("daemon")

	var consumers []dispatch.Consumer
	if !opts.quiet && !cfg.General.Quiet {
		consumers = append(consumers, dispatch.NewLoggingConsumer())
	}
	if server != nil {
		consumers = append(consumers, server.Consumer())
	}
	if scripts := opts.scripts.Merge(cfg.Scripts.Set()); !scripts.Empty() {
		consumers = append(consumers, script.NewShellConsumer(scripts, cfg.Scripts.Timeout.Duration))
	}
	if js := opts.js.Merge(cfg.JSScripts.Set()); !js.Empty() {
		consumers = append(consumers, script.NewJSConsumer(js, cfg.JSScripts.Timeout.Duration))
	}

	for _, c := range consumers {
		if err := d.Register(c); err != nil {
			return nil, fmt.Errorf("registering %s: %w", dispatch.Name(c), err)
		}
		logger.Debugf("registered consumer %s", dispatch.Name(c))
	}
	return d, nil
}
