// Package ipc exposes theme changes to other local processes over a Unix
// domain socket.
//
// Protocol:
//   - server -> client: one ASCII line per theme, "light\n" or "dark\n".
//     The current theme is sent right after connecting when known, then
//     again on every change.
//   - client -> server: ASCII lines. Only "quit" (surrounding whitespace
//     ignored) means something: it closes the connection. Anything else is
//     discarded.
//
// The socket is owner-only (0600). A stale socket left by a crashed
// instance is removed on start; the file is removed again on Close.
// There is no authentication beyond file permissions.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rubiojr/theme-switcher/pkg/broadcast"
	"github.com/rubiojr/theme-switcher/pkg/log"
	"github.com/rubiojr/theme-switcher/pkg/metrics"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// LagPolicy decides what happens to a connection whose subscriber fell more
// than the channel capacity behind.
type LagPolicy string

const (
	// LagResync skips the backlog and writes only the newest theme.
	LagResync LagPolicy = "resync"
	// LagDisconnect closes the lagged connection.
	LagDisconnect LagPolicy = "disconnect"
)

// ParseLagPolicy accepts "resync", "disconnect" or "" (resync).
func ParseLagPolicy(s string) (LagPolicy, error) {
	switch LagPolicy(s) {
	case "", LagResync:
		return LagResync, nil
	case LagDisconnect:
		return LagDisconnect, nil
	}
	return "", fmt.Errorf("unknown lag policy %q", s)
}

// ErrAlreadyRunning is returned by Start when another live server answers
// on the socket path.
var ErrAlreadyRunning = errors.New("another instance is listening on the socket")

// Options configures a Server. Zero values select the defaults.
type Options struct {
	// Path of the socket file. Defaults to DefaultSocketPath().
	Path string
	// Buffer is the per-connection event capacity (default 16).
	Buffer int
	// LagPolicy defaults to LagResync.
	LagPolicy LagPolicy
	// WriteTimeout bounds a single write to a client (default 5s).
	WriteTimeout time.Duration
}

// Server owns the listening socket, the broadcast channel and the current
// theme cell.
type Server struct {
	path         string
	lagPolicy    LagPolicy
	writeTimeout time.Duration

	ch   *broadcast.Channel
	cell *Cell

	ln     net.Listener
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	conns  atomic.Int64

	startOnce sync.Once
	closeOnce sync.Once
	logger    *log.Logger
}

// NewServer constructs (but does not start) a server.
func NewServer(opts Options) *Server {
	if opts.Path == "" {
		opts.Path = DefaultSocketPath()
	}
	if opts.LagPolicy == "" {
		opts.LagPolicy = LagResync
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		path:         opts.Path,
		lagPolicy:    opts.LagPolicy,
		writeTimeout: opts.WriteTimeout,
		ch:           broadcast.New(opts.Buffer),
		cell:         &Cell{},
		ctx:          ctx,
		cancel:       cancel,
		logger:       log.ForService("ipc"),
	}
}

// Path returns the socket path.
func (s *Server) Path() string { return s.path }

// Cell returns the shared current-theme cell.
func (s *Server) Cell() *Cell { return s.cell }

// Connections returns the number of live client connections.
func (s *Server) Connections() int { return int(s.conns.Load()) }

// SetCurrent seeds the current theme without notifying clients.
func (s *Server) SetCurrent(t theme.Theme) { s.cell.Set(t) }

// Consumer returns the dispatcher consumer that feeds this server.
func (s *Server) Consumer() *Consumer {
	return NewConsumer(s.cell, s.ch)
}

// Start binds the socket and begins accepting connections in the
// background. The server closes itself when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	err := errors.New("server already started")
	s.startOnce.Do(func() {
		err = s.listen()
		if err != nil {
			return
		}
		s.logger.Infof("IPC server listening on: %s", s.path)

		s.wg.Add(1)
		go s.acceptLoop()
		go func() {
			select {
			case <-ctx.Done():
				_ = s.Close()
			case <-s.ctx.Done():
			}
		}()
	})
	return err
}

func (s *Server) listen() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}

	if st, err := os.Lstat(s.path); err == nil {
		if st.IsDir() {
			return fmt.Errorf("socket path %s is a directory", s.path)
		}
		if conn, err := net.DialTimeout("unix", s.path, 200*time.Millisecond); err == nil {
			_ = conn.Close()
			return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.path)
		}
		s.logger.Debugf("removing stale socket %s", s.path)
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing stale socket: %w", err)
		}
	}

	ln, err := listenUnix(s.path)
	if err != nil {
		return fmt.Errorf("listen on unix socket %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("restricting socket permissions: %w", err)
	}
	s.ln = ln
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Errorf("Error accepting connection: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// Close stops accepting, closes the broadcast channel so every connection
// terminates, waits for handlers to return and removes the socket file.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		if s.ln != nil {
			if cerr := s.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
				err = cerr
			}
		}
		s.ch.Close()
		s.wg.Wait()
		if s.ln != nil {
			if rerr := os.Remove(s.path); rerr != nil && !os.IsNotExist(rerr) && err == nil {
				err = rerr
			}
		}
	})
	return err
}

// Consumer updates the current-theme cell and then publishes the theme to
// every connected client.
type Consumer struct {
	cell   *Cell
	ch     *broadcast.Channel
	logger *log.Logger
}

func NewConsumer(cell *Cell, ch *broadcast.Channel) *Consumer {
	return &Consumer{cell: cell, ch: ch, logger: log.ForService("ipc")}
}

func (c *Consumer) OnThemeChange(t theme.Theme) {
	c.cell.Set(t)
	n := c.ch.Publish(t)
	metrics.IPCBroadcasts.Inc()
	c.logger.Debugf("broadcast %s to %d clients", t, n)
}

func (c *Consumer) String() string { return "ipc" }
