package cmd

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubiojr/theme-switcher/pkg/config"
	"github.com/rubiojr/theme-switcher/pkg/dispatch"
	"github.com/rubiojr/theme-switcher/pkg/ipc"
	"github.com/rubiojr/theme-switcher/pkg/log"
	"github.com/rubiojr/theme-switcher/pkg/script"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

func TestBuildDispatcherConsumerSet(t *testing.T) {
	cfg := config.GetDefaultConfig()

	d, err := buildDispatcher(cfg, runOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Len(), "logging only")

	d, err = buildDispatcher(cfg, runOptions{quiet: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, d.Len())

	cfg.General.Quiet = true
	s := ipc.NewServer(ipc.Options{Path: filepath.Join(t.TempDir(), "s.sock")})
	d, err = buildDispatcher(cfg, runOptions{
		scripts: script.Set{Dark: []string{"dark.sh"}},
		js:      script.Set{Any: []string{"any.js"}},
	}, s)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len(), "ipc, scripts and js")
}

func TestPipelineSwap(t *testing.T) {
	var got []string
	p := &pipeline{}
	p.dispatch(theme.Dark) // no dispatcher yet

	first := dispatch.New()
	require.NoError(t, first.Register(dispatch.ConsumerFunc(func(t theme.Theme) { got = append(got, "first:"+t.String()) })))
	p.swap(first)
	p.dispatch(theme.Dark)

	second := dispatch.New()
	require.NoError(t, second.Register(dispatch.ConsumerFunc(func(t theme.Theme) { got = append(got, "second:"+t.String()) })))
	p.swap(second)
	p.dispatch(theme.Light)

	assert.Equal(t, []string{"first:dark", "second:light"}, got)
}

func TestRunDaemonEndToEnd(t *testing.T) {
	t.Cleanup(func() { log.SetQuiet(false) })

	dir := t.TempDir()
	themeFile := filepath.Join(dir, "theme")
	record := filepath.Join(dir, "record")
	socket := filepath.Join(dir, "ts.sock")
	require.NoError(t, os.WriteFile(themeFile, []byte("light\n"), 0o644))

	darkScript := filepath.Join(dir, "dark.sh")
	require.NoError(t, os.WriteFile(darkScript,
		[]byte("#!/bin/sh\necho \"$THEME_SWITCHER_THEME\" >> "+record+"\n"), 0o755))

	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(fmt.Sprintf(`
[general]
quiet = true

[ipc]
enabled = true
socket_path = %q

[source]
kind = "file"
file = %q
`, socket, themeFile)), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runDaemon(ctx, runOptions{
			configPath: configPath,
			scripts:    script.Set{Dark: []string{darkScript}},
		})
	}()

	var conn net.Conn
	require.Eventually(t, func() bool {
		c, err := net.Dial("unix", socket)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 5*time.Second, 10*time.Millisecond)
	defer func() { _ = conn.Close() }()

	r := bufio.NewReader(conn)
	readLine := func() string {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		return line
	}
	assert.Equal(t, "light\n", readLine(), "cell seeded from the source")

	require.NoError(t, os.WriteFile(themeFile, []byte("dark\n"), 0o644))
	assert.Equal(t, "dark\n", readLine())

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(record)
		return err == nil && strings.Contains(string(data), "dark")
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	_, err := os.Stat(socket)
	assert.True(t, os.IsNotExist(err), "socket removed on shutdown")
}

func TestRunDaemonRejectsBadConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("[ipc]\nlag_policy = \"sometimes\"\n"), 0o644))

	err := runDaemon(context.Background(), runOptions{configPath: configPath})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}
