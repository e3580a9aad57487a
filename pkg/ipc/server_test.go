package ipc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubiojr/theme-switcher/pkg/theme"
)

type client struct {
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, path string) *client {
	t.Helper()
	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) readLine(t *testing.T) string {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	line, err := c.r.ReadString('\n')
	require.NoError(t, err)
	return line
}

func (c *client) expectClosed(t *testing.T) {
	t.Helper()
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, err := c.r.ReadString('\n')
	require.ErrorIs(t, err, io.EOF)
}

func startServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "s.sock")
	}
	s := NewServer(opts)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func waitConns(t *testing.T, s *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Connections() == n }, 3*time.Second, 5*time.Millisecond)
}

func TestLateJoinerGetsCurrentTheme(t *testing.T) {
	s := startServer(t, Options{})
	s.Consumer().OnThemeChange(theme.Dark)

	c := dial(t, s.Path())
	assert.Equal(t, "dark\n", c.readLine(t))

	s.Consumer().OnThemeChange(theme.Light)
	assert.Equal(t, "light\n", c.readLine(t))
}

func TestSeededCellIsSentOnConnect(t *testing.T) {
	s := startServer(t, Options{})
	s.SetCurrent(theme.Light)

	got, ok := s.Cell().Get()
	require.True(t, ok)
	assert.Equal(t, theme.Light, got)

	assert.Equal(t, "light\n", dial(t, s.Path()).readLine(t))
}

func TestNoInitialLineWhenThemeUnknown(t *testing.T) {
	s := startServer(t, Options{})
	c := dial(t, s.Path())
	waitConns(t, s, 1)

	s.Consumer().OnThemeChange(theme.Dark)
	assert.Equal(t, "dark\n", c.readLine(t))
}

func TestClientsReceiveSameSequence(t *testing.T) {
	s := startServer(t, Options{})
	a := dial(t, s.Path())
	b := dial(t, s.Path())
	waitConns(t, s, 2)

	seq := []theme.Theme{theme.Light, theme.Dark, theme.Dark, theme.Light}
	for _, th := range seq {
		s.Consumer().OnThemeChange(th)
	}
	for _, c := range []*client{a, b} {
		for _, th := range seq {
			assert.Equal(t, th.String()+"\n", c.readLine(t))
		}
	}
}

func TestStalledClientDoesNotBlockOthers(t *testing.T) {
	s := startServer(t, Options{})
	dial(t, s.Path()) // never reads
	fast := dial(t, s.Path())
	waitConns(t, s, 2)

	total := 100
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			s.Consumer().OnThemeChange(theme.Dark)
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked by a stalled client")
	}

	// The fast client keeps receiving; it may skip events only if it lags.
	assert.Equal(t, "dark\n", fast.readLine(t))
	s.Consumer().OnThemeChange(theme.Light)
	for {
		if line := fast.readLine(t); line == "light\n" {
			break
		}
	}
}

func TestQuitClosesOnlyThatConnection(t *testing.T) {
	s := startServer(t, Options{})
	a := dial(t, s.Path())
	b := dial(t, s.Path())
	waitConns(t, s, 2)

	_, err := a.conn.Write([]byte("hello\n  quit  \n"))
	require.NoError(t, err)
	a.expectClosed(t)
	waitConns(t, s, 1)

	s.Consumer().OnThemeChange(theme.Dark)
	assert.Equal(t, "dark\n", b.readLine(t))

	c := dial(t, s.Path())
	assert.Equal(t, "dark\n", c.readLine(t), "accept loop still running")
}

func TestPeerDisconnectReleasesSubscriber(t *testing.T) {
	s := startServer(t, Options{})
	c := dial(t, s.Path())
	waitConns(t, s, 1)
	require.NoError(t, c.conn.Close())
	waitConns(t, s, 0)
	require.Eventually(t, func() bool { return s.ch.Len() == 0 }, 3*time.Second, 5*time.Millisecond)
}

func TestSocketPermissions(t *testing.T) {
	s := startServer(t, Options{})
	st, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
}

func TestStaleSocketIsReplaced(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.sock")

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())
	_, err = os.Stat(path)
	require.NoError(t, err, "stale socket file left behind")

	s := startServer(t, Options{Path: path})
	s.Consumer().OnThemeChange(theme.Light)
	assert.Equal(t, "light\n", dial(t, path).readLine(t))
}

func TestSecondInstanceRefused(t *testing.T) {
	s := startServer(t, Options{})
	other := NewServer(Options{Path: s.Path()})
	err := other.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.NoError(t, other.Close())

	_, err = os.Stat(s.Path())
	require.NoError(t, err, "running instance keeps its socket")
}

func TestStartTwice(t *testing.T) {
	s := startServer(t, Options{})
	require.Error(t, s.Start(context.Background()))
}

func TestCloseTerminatesClientsAndRemovesSocket(t *testing.T) {
	s := startServer(t, Options{})
	c := dial(t, s.Path())
	waitConns(t, s, 1)

	require.NoError(t, s.Close())
	c.expectClosed(t)
	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, s.Close())
}

func TestContextCancelClosesServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.sock")
	s := NewServer(Options{Path: path})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 3*time.Second, 10*time.Millisecond)
}

// pipeServer runs serveConn over net.Pipe, whose writes block until the
// peer reads, so a non-reading client lags deterministically.
func pipeServer(t *testing.T, policy LagPolicy) (*Server, *client) {
	t.Helper()
	s := NewServer(Options{Path: filepath.Join(t.TempDir(), "unused.sock"), Buffer: 2, LagPolicy: policy})
	srv, cli := net.Pipe()
	go s.serveConn(srv)
	t.Cleanup(func() {
		_ = cli.Close()
		_ = s.Close()
	})
	waitConns(t, s, 1)
	return s, &client{conn: cli, r: bufio.NewReader(cli)}
}

func publishBurst(s *Server) {
	s.Consumer().OnThemeChange(theme.Light)
	for i := 0; i < 5; i++ {
		s.Consumer().OnThemeChange(theme.Light)
	}
	s.Consumer().OnThemeChange(theme.Dark)
}

func TestLagPolicyResync(t *testing.T) {
	s, c := pipeServer(t, LagResync)
	publishBurst(s)

	var lines []string
	for {
		line := c.readLine(t)
		lines = append(lines, line)
		if line == "dark\n" {
			break
		}
	}
	assert.LessOrEqual(t, len(lines), 3, "backlog skipped: %v", lines)

	s.Consumer().OnThemeChange(theme.Light)
	assert.Equal(t, "light\n", c.readLine(t), "resynced client keeps receiving")
}

func TestLagPolicyDisconnect(t *testing.T) {
	s, c := pipeServer(t, LagDisconnect)
	publishBurst(s)

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		_, err = c.r.ReadString('\n')
	}
	require.ErrorIs(t, err, io.EOF)
	waitConns(t, s, 0)
}

func TestParseLagPolicy(t *testing.T) {
	for in, want := range map[string]LagPolicy{"": LagResync, "resync": LagResync, "disconnect": LagDisconnect} {
		got, err := ParseLagPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseLagPolicy("drop")
	require.Error(t, err)
}

func TestDefaultSocketPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", dir)
	assert.Equal(t, filepath.Join(dir, SocketName), DefaultSocketPath())

	t.Setenv("XDG_RUNTIME_DIR", "")
	t.Setenv("HOME", dir)
	assert.Equal(t, filepath.Join(dir, ".local", "run", SocketName), DefaultSocketPath())
}

func TestCellConcurrentAccess(t *testing.T) {
	var c Cell
	_, ok := c.Get()
	assert.False(t, ok)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			c.Set(theme.Theme(i % 2))
		}
	}()
	for i := 0; i < 1000; i++ {
		if th, ok := c.Get(); ok {
			assert.True(t, th == theme.Light || th == theme.Dark)
		}
	}
	<-done
	th, ok := c.Get()
	require.True(t, ok)
	assert.Equal(t, theme.Dark, th)
}

func TestSocketDirIsCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run", "s.sock")
	s := startServer(t, Options{Path: path})
	assert.True(t, strings.HasSuffix(s.Path(), "s.sock"))
	_, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err, fmt.Sprintf("directory for %s", path))
}
