// Package source observes the operating system appearance setting and
// reports changes through a callback. The dispatcher only depends on the
// Source interface; how each platform registers for notifications stays
// inside its implementation.
package source

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// ErrUnsupported is returned by New when no source exists for the platform.
var ErrUnsupported = errors.New("this platform is not currently supported")

// Callback receives every observed theme. Sources do not de-duplicate:
// the same theme may be reported twice in a row.
type Callback func(theme.Theme)

// Source emits theme changes between Start and Stop and reports the current
// value on demand.
type Source interface {
	Start(cb Callback) error
	Stop() error
	Current() (theme.Theme, error)
}

// Kinds accepted by Options.Kind.
const (
	KindAuto    = "auto"
	KindPortal  = "portal"
	KindFile    = "file"
	KindCommand = "command"
)

// DarwinCommand reports "Dark" on macOS when dark mode is on and fails
// otherwise.
const DarwinCommand = "defaults read -g AppleInterfaceStyle"

// Options selects and configures a source.
type Options struct {
	Kind     string
	File     string
	Command  string
	Interval time.Duration
}

// New builds the source described by opts.
func New(opts Options) (Source, error) {
	kind := opts.Kind
	if kind == "" || kind == KindAuto {
		switch runtime.GOOS {
		case "linux", "freebsd", "openbsd", "netbsd":
			kind = KindPortal
		case "darwin":
			kind = KindCommand
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, runtime.GOOS)
		}
	}

	switch kind {
	case KindPortal:
		return NewPortal(), nil
	case KindFile:
		if opts.File == "" {
			return nil, errors.New("file source requires a file path")
		}
		return NewFile(opts.File), nil
	case KindCommand:
		cmd := opts.Command
		if cmd == "" {
			if runtime.GOOS != "darwin" {
				return nil, errors.New("command source requires a command")
			}
			cmd = DarwinCommand
		}
		return NewCommand(cmd, opts.Interval), nil
	}
	return nil, fmt.Errorf("unknown source kind %q", kind)
}
