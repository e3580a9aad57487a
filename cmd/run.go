package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/rubiojr/theme-switcher/pkg/config"
	"github.com/rubiojr/theme-switcher/pkg/ipc"
	"github.com/rubiojr/theme-switcher/pkg/log"
	"github.com/rubiojr/theme-switcher/pkg/metrics"
	"github.com/rubiojr/theme-switcher/pkg/script"
	"github.com/rubiojr/theme-switcher/pkg/source"
)

// RunFlags are the daemon flags. They live on the root command so that
// `theme-switcher -d dark.sh` works without a subcommand.
func RunFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "light-script", Aliases: []string{"l"}, Usage: "Script to run when switching to light theme"},
		&cli.StringSliceFlag{Name: "dark-script", Aliases: []string{"d"}, Usage: "Script to run when switching to dark theme"},
		&cli.StringSliceFlag{Name: "any-script", Aliases: []string{"a"}, Usage: "Script to run on any theme change"},
		&cli.StringSliceFlag{Name: "js-light", Usage: "JavaScript file to run when switching to light theme"},
		&cli.StringSliceFlag{Name: "js-dark", Usage: "JavaScript file to run when switching to dark theme"},
		&cli.StringSliceFlag{Name: "js-any", Usage: "JavaScript file to run on any theme change"},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress informational output"},
		&cli.BoolFlag{Name: "ipc", Usage: "Enable the IPC server so editors can subscribe to theme changes"},
		&cli.StringFlag{Name: "socket", Usage: "IPC socket path (overrides config ipc.socket_path)"},
	}
}

// RunCommand creates the run command. Its flags are inherited from the root.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Monitor the system theme and run handlers (default)",
		Action: RunAction,
	}
}

// RunAction starts the daemon.
func RunAction(ctx context.Context, c *cli.Command) error {
	return runDaemon(ctx, runOptionsFrom(c))
}

type runOptions struct {
	configPath string
	quiet      bool
	debug      bool
	ipc        bool
	socket     string
	scripts    script.Set
	js         script.Set
}

func runOptionsFrom(c *cli.Command) runOptions {
	return runOptions{
		configPath: c.String("config"),
		quiet:      c.Bool("quiet"),
		debug:      c.Bool("debug"),
		ipc:        c.Bool("ipc"),
		socket:     c.String("socket"),
		scripts: script.Set{
			Light: c.StringSlice("light-script"),
			Dark:  c.StringSlice("dark-script"),
			Any:   c.StringSlice("any-script"),
		},
		js: script.Set{
			Light: c.StringSlice("js-light"),
			Dark:  c.StringSlice("js-dark"),
			Any:   c.StringSlice("js-any"),
		},
	}
}

func applyLogging(cfg *config.Config, opts runOptions) (func(), error) {
	log.SetQuiet(opts.quiet || cfg.General.Quiet)
	log.SetGlobalDebug(opts.debug || cfg.General.Debug)
	if cfg.General.LogFile == "" {
		return func() {}, nil
	}
	f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	log.SetOutput(f)
	return func() {
		log.SetOutput(os.Stderr)
		_ = f.Close()
	}, nil
}

// runDaemon wires source -> dispatcher -> consumers and blocks until ctx is
// cancelled or SIGINT/SIGTERM arrives.
func runDaemon(ctx context.Context, opts runOptions) error {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	closeLog, err := applyLogging(cfg, opts)
	if err != nil {
		return err
	}
	defer closeLog()

	logger := log.ForService("daemon")
	logger.Infof("Starting theme monitor...")

	src, err := source.New(cfg.SourceOptions())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// IPC setup errors disable IPC only; the rest of the pipeline runs.
	var server *ipc.Server
	if opts.ipc || cfg.IPC.Enabled {
		server, err = startIPC(ctx, cfg, opts)
		if err != nil {
			logger.Errorf("IPC server not started: %v", err)
			server = nil
		} else {
			defer func() {
				if err := server.Close(); err != nil {
					logger.Warnf("closing IPC server: %v", err)
				}
			}()
		}
	}

	p := &pipeline{}
	d, err := buildDispatcher(cfg, opts, server)
	if err != nil {
		return err
	}
	p.swap(d)

	if current, err := src.Current(); err != nil {
		logger.Warnf("reading current theme: %v", err)
	} else {
		logger.Infof("Current theme: %s", current)
		if server != nil {
			server.SetCurrent(current)
		}
	}

	if err := src.Start(p.dispatch); err != nil {
		return fmt.Errorf("starting theme source: %w", err)
	}
	defer func() {
		if err := src.Stop(); err != nil {
			logger.Warnf("stopping theme source: %v", err)
		}
	}()
	logger.Infof("Monitoring for theme changes. Press Ctrl+C to stop, send SIGHUP to reload.")

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Addr) })
	}
	g.Go(func() error {
		defer cancel()
		return supervise(gctx, opts, p, server)
	})
	return g.Wait()
}

func startIPC(ctx context.Context, cfg *config.Config, opts runOptions) (*ipc.Server, error) {
	ipcOpts, err := cfg.IPCOptions()
	if err != nil {
		return nil, err
	}
	if opts.socket != "" {
		ipcOpts.Path = opts.socket
	}
	server := ipc.NewServer(ipcOpts)
	if err := server.Start(ctx); err != nil {
		return nil, err
	}
	return server, nil
}

// supervise handles signals and config file changes until shutdown.
func supervise(ctx context.Context, opts runOptions, p *pipeline, server *ipc.Server) error {
	logger := log.ForService("daemon")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warnf("failed to create config file watcher: %v", err)
	} else {
		defer func() { _ = watcher.Close() }()
		if err := watcher.Add(opts.configPath); err != nil {
			logger.Debugf("not watching config file %s: %v", opts.configPath, err)
		} else {
			logger.Infof("Watching config file for changes: %s", opts.configPath)
		}
		events, watchErrs = watcher.Events, watcher.Errors
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			if sig != syscall.SIGHUP {
				logger.Infof("Shutting down...")
				return nil
			}
			logger.Infof("Received SIGHUP, reloading configuration...")
			reload(opts, p, server)
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}
			logger.Infof("Config file changed (%s), reloading configuration...", event.Op)
			if event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				// Editors replace the file atomically; re-arm the watch.
				time.Sleep(200 * time.Millisecond)
				if _, err := os.Stat(opts.configPath); os.IsNotExist(err) {
					logger.Warnf("Config file was removed and not replaced, skipping reload")
					continue
				}
				if err := watcher.Add(opts.configPath); err != nil {
					logger.Warnf("failed to re-add config file to watcher: %v", err)
				}
			} else {
				time.Sleep(100 * time.Millisecond)
			}
			reload(opts, p, server)
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			logger.Warnf("Config file watcher error: %v", err)
		}
	}
}

// reload rebuilds the consumer set from the config file. The IPC server
// and the theme source are kept as they are.
func reload(opts runOptions, p *pipeline, server *ipc.Server) {
	logger := log.ForService("daemon")
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		logger.Errorf("Failed to reload configuration: %v", err)
		return
	}
	log.SetQuiet(opts.quiet || cfg.General.Quiet)
	log.SetGlobalDebug(opts.debug || cfg.General.Debug)

	d, err := buildDispatcher(cfg, opts, server)
	if err != nil {
		logger.Errorf("Failed to reload configuration: %v", err)
		return
	}
	p.swap(d)
	logger.Infof("Configuration reloaded: %d consumers", d.Len())
}
