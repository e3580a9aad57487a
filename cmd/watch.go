package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/rubiojr/theme-switcher/pkg/config"
	"github.com/rubiojr/theme-switcher/pkg/ipc"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// WatchCommand creates a CLI command that follows the daemon's IPC socket
// and prints one line per theme change.
//
// Typical usage:
//
//	theme-switcher watch
//	theme-switcher watch --once          (print the current theme and exit)
//	theme-switcher watch --raw | while read t; do ...; done
//
// The socket path comes from the root --socket flag, then ipc.socket_path,
// then the default location. The command reconnects with exponential
// backoff if the socket is not yet available or the daemon restarts,
// unless --no-retry or --once is set.
func WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Follow theme changes published by a running daemon",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Print the current theme and exit",
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Print bare theme names even on a terminal",
			},
			&cli.BoolFlag{
				Name:  "no-retry",
				Usage: "Do not retry on failures; exit on first connection error",
			},
			&cli.DurationFlag{
				Name:  "initial-backoff",
				Usage: "Initial reconnect backoff",
				Value: 1 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "max-backoff",
				Usage: "Maximum reconnect backoff",
				Value: 30 * time.Second,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			socketPath := c.String("socket")
			if socketPath == "" {
				cfg, err := config.LoadConfig(c.String("config"))
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				socketPath = cfg.IPC.SocketPath
			}
			if socketPath == "" {
				socketPath = ipc.DefaultSocketPath()
			}

			opts := watchOptions{
				socketPath:     socketPath,
				once:           c.Bool("once"),
				noRetry:        c.Bool("no-retry"),
				initialBackoff: c.Duration("initial-backoff"),
				maxBackoff:     c.Duration("max-backoff"),
				stdout:         os.Stdout,
				stderr:         os.Stderr,
			}
			opts.styled = !c.Bool("raw") && isTerminal(opts.stdout)
			return watchThemes(ctx, opts)
		},
	}
}

type watchOptions struct {
	socketPath     string
	once           bool
	noRetry        bool
	styled         bool
	initialBackoff time.Duration
	maxBackoff     time.Duration
	stdout         io.Writer
	stderr         io.Writer
}

// errOnceDone ends the reconnect loop after a --once read.
var errOnceDone = errors.New("once: done")

func watchThemes(ctx context.Context, opts watchOptions) error {
	if opts.initialBackoff <= 0 {
		opts.initialBackoff = time.Second
	}
	if opts.maxBackoff < opts.initialBackoff {
		opts.maxBackoff = 30 * time.Second
	}

	backoff := opts.initialBackoff
	for {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "unix", opts.socketPath)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if opts.noRetry || opts.once {
				return fmt.Errorf("dial %s: %w", opts.socketPath, err)
			}
			_, _ = fmt.Fprintf(opts.stderr, "watch: dial failed (%v), retrying in %s\n", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > opts.maxBackoff {
				backoff = opts.maxBackoff
			}
			continue
		}
		backoff = opts.initialBackoff

		err = streamThemes(ctx, conn, opts)
		switch {
		case errors.Is(err, errOnceDone):
			return nil
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case opts.noRetry:
			return err
		case err != nil:
			_, _ = fmt.Fprintf(opts.stderr, "watch: stream error (%v), reconnecting...\n", err)
		default:
			_, _ = fmt.Fprintf(opts.stderr, "watch: daemon closed the connection, reconnecting...\n")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

func streamThemes(ctx context.Context, conn net.Conn, opts watchOptions) error {
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		t, err := theme.Parse(line)
		if err != nil {
			_, _ = fmt.Fprintf(opts.stderr, "watch: ignoring unexpected line %q\n", line)
			continue
		}
		printTheme(opts.stdout, t, opts.styled)

		if opts.once {
			_, _ = fmt.Fprintln(conn, ipc.QuitCommand)
			return errOnceDone
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read error: %w", err)
	}
	return nil
}

func printTheme(w io.Writer, t theme.Theme, styled bool) {
	if !styled {
		_, _ = fmt.Fprintln(w, t)
		return
	}
	_, _ = fmt.Fprintf(w, "%s %s\n",
		renderTheme(t),
		metaStyle.Render(time.Now().Format(time.TimeOnly)))
}
