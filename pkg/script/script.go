// Package script runs user scripts in reaction to theme changes. Two
// consumers share the same selection rules: ShellConsumer spawns a shell
// process per script, JSConsumer evaluates a JavaScript file in a fresh
// interpreter per script.
package script

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// Set holds the three ordered script lists.
type Set struct {
	Light []string
	Dark  []string
	Any   []string
}

// Empty reports whether no script is configured.
func (s Set) Empty() bool {
	return len(s.Light) == 0 && len(s.Dark) == 0 && len(s.Any) == 0
}

// Merge appends o's lists after s's.
func (s Set) Merge(o Set) Set {
	return Set{
		Light: append(append([]string(nil), s.Light...), o.Light...),
		Dark:  append(append([]string(nil), s.Dark...), o.Dark...),
		Any:   append(append([]string(nil), s.Any...), o.Any...),
	}
}

// For returns the scripts to run for t: the matching theme list first,
// then the any-change list.
func (s Set) For(t theme.Theme) []string {
	specific := s.Light
	if t == theme.Dark {
		specific = s.Dark
	}
	out := make([]string, 0, len(specific)+len(s.Any))
	out = append(out, specific...)
	return append(out, s.Any...)
}

// Result is the captured outcome of a shell command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports a zero exit status.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// RunCommand runs cmdline through "sh -c" and captures its output. A
// non-zero exit is reported in Result, not as an error; err is only set
// when the process could not be started or waited on.
func RunCommand(ctx context.Context, cmdline string, env []string) (Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	if env != nil {
		cmd.Env = env
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, err
}

func withTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
