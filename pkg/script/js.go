package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"

	"github.com/rubiojr/theme-switcher/pkg/log"
	"github.com/rubiojr/theme-switcher/pkg/metrics"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// JSConsumer evaluates JavaScript files. Each file runs in its own goja
// runtime, so nothing a script defines is visible to the next one.
//
// Globals available to scripts:
//
//	THEME, THEME_UPPER        "dark" / "DARK"
//	IS_DARK, IS_LIGHT         booleans
//	theme_switcher.current_theme, .is_dark, .is_light
//	theme_switcher.log(msg), .log_error(msg)
//	theme_switcher.execute(cmd) -> {stdout, stderr, success, code}
type JSConsumer struct {
	scripts Set
	timeout time.Duration
	logger  *log.Logger
}

// NewJSConsumer returns a consumer for scripts. A non-zero timeout
// interrupts scripts that run longer.
func NewJSConsumer(scripts Set, timeout time.Duration) *JSConsumer {
	return &JSConsumer{
		scripts: scripts,
		timeout: timeout,
		logger:  log.ForService("js"),
	}
}

func (j *JSConsumer) OnThemeChange(t theme.Theme) {
	for _, path := range j.scripts.For(t) {
		if err := j.Run(path, t); err != nil {
			metrics.ScriptRuns.WithLabelValues("js", "failed").Inc()
			j.logger.Errorf("%v", err)
			continue
		}
		metrics.ScriptRuns.WithLabelValues("js", "ok").Inc()
	}
}

func (j *JSConsumer) String() string { return "js" }

// Run evaluates the script at path with t bound in a new runtime.
func (j *JSConsumer) Run(path string, t theme.Theme) error {
	j.logger.Infof("Executing JS script: %s", path)

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading JS script %s: %w", path, err)
	}

	ctx, cancel := withTimeout(j.timeout)
	defer cancel()

	vm, err := j.newRuntime(ctx, t)
	if err != nil {
		return fmt.Errorf("creating JS runtime: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(fmt.Sprintf("timed out after %s", j.timeout))
	})
	defer stop()

	if _, err := vm.RunScript(path, string(src)); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return fmt.Errorf("JS script %s interrupted: %v", path, interrupted.Value())
		}
		return fmt.Errorf("JS script error in %s: %w", path, err)
	}
	return nil
}

func (j *JSConsumer) newRuntime(ctx context.Context, t theme.Theme) (*goja.Runtime, error) {
	vm := goja.New()
	env := append(os.Environ(), t.Env()...)

	ts := vm.NewObject()
	bindings := map[string]any{
		"current_theme": t.String(),
		"is_dark":       t.IsDark(),
		"is_light":      t.IsLight(),
		"log": func(msg string) {
			j.logger.Infof("%s", msg)
		},
		"log_error": func(msg string) {
			j.logger.Errorf("%s", msg)
		},
		"execute": func(cmdline string) (map[string]any, error) {
			res, err := RunCommand(ctx, cmdline, env)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"stdout":  res.Stdout,
				"stderr":  res.Stderr,
				"success": res.Success(),
				"code":    res.ExitCode,
			}, nil
		},
	}
	for k, v := range bindings {
		if err := ts.Set(k, v); err != nil {
			return nil, err
		}
	}

	globals := map[string]any{
		"theme_switcher": ts,
		"THEME":          t.String(),
		"THEME_UPPER":    t.Upper(),
		"IS_DARK":        t.IsDark(),
		"IS_LIGHT":       t.IsLight(),
	}
	for k, v := range globals {
		if err := vm.Set(k, v); err != nil {
			return nil, err
		}
	}
	return vm, nil
}
