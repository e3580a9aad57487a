package theme

import (
	"errors"
	"fmt"
	"strings"
)

// Environment variable names exported to spawned scripts.
const (
	EnvTheme      = "THEME_SWITCHER_THEME"
	EnvThemeUpper = "THEME_SWITCHER_THEME_UPPER"
)

// ErrInvalid is returned by Parse for anything other than light or dark.
var ErrInvalid = errors.New("invalid theme")

// Theme is the system appearance mode.
type Theme int

const (
	Light Theme = iota
	Dark
)

// String returns the wire token: "light" or "dark".
func (t Theme) String() string {
	if t == Dark {
		return "dark"
	}
	return "light"
}

// Upper returns the uppercase token ("LIGHT"/"DARK").
func (t Theme) Upper() string {
	return strings.ToUpper(t.String())
}

func (t Theme) IsDark() bool  { return t == Dark }
func (t Theme) IsLight() bool { return t == Light }

// Env returns the KEY=value pairs exposed to script invocations.
func (t Theme) Env() []string {
	return []string{
		EnvTheme + "=" + t.String(),
		EnvThemeUpper + "=" + t.Upper(),
	}
}

// Parse accepts "light" or "dark" in any case, surrounding space ignored.
func Parse(s string) (Theme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "light":
		return Light, nil
	case "dark":
		return Dark, nil
	}
	return Light, fmt.Errorf("%w: %q", ErrInvalid, s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Theme) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Theme) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}
