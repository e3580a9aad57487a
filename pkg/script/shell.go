package script

import (
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/rubiojr/theme-switcher/pkg/log"
	"github.com/rubiojr/theme-switcher/pkg/metrics"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// ShellConsumer runs each selected script as `sh -c <script>` with the
// theme exported in THEME_SWITCHER_THEME and THEME_SWITCHER_THEME_UPPER.
// Scripts run one at a time; OnThemeChange returns once the last one exits.
type ShellConsumer struct {
	scripts Set
	timeout time.Duration
	logger  *log.Logger

	// Stdout and Stderr receive the scripts' output. Defaults to the
	// daemon's own streams.
	Stdout, Stderr io.Writer
}

// NewShellConsumer returns a consumer for scripts. A zero timeout lets
// scripts run until they exit.
func NewShellConsumer(scripts Set, timeout time.Duration) *ShellConsumer {
	return &ShellConsumer{
		scripts: scripts,
		timeout: timeout,
		logger:  log.ForService("scripts"),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}
}

func (s *ShellConsumer) OnThemeChange(t theme.Theme) {
	for _, path := range s.scripts.For(t) {
		s.run(path, t)
	}
}

func (s *ShellConsumer) String() string { return "scripts" }

func (s *ShellConsumer) run(path string, t theme.Theme) {
	s.logger.Infof("Executing script: %s", path)

	ctx, cancel := withTimeout(s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", path)
	cmd.Env = append(os.Environ(), t.Env()...)
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	// Background children may keep the output pipes open after a timeout.
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		metrics.ScriptRuns.WithLabelValues("shell", "spawn_error").Inc()
		s.logger.Errorf("failed to execute script %s: %v", path, err)
		return
	}
	if err := cmd.Wait(); err != nil {
		metrics.ScriptRuns.WithLabelValues("shell", "failed").Inc()
		if ctx.Err() != nil {
			s.logger.Errorf("script %s timed out after %s", path, s.timeout)
			return
		}
		s.logger.Errorf("script %s exited with non-zero status: %v", path, err)
		return
	}
	metrics.ScriptRuns.WithLabelValues("shell", "ok").Inc()
}
