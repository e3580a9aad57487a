package source

import (
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/rubiojr/theme-switcher/pkg/log"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

const (
	portalDest      = "org.freedesktop.portal.Desktop"
	portalPath      = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	settingsIface   = "org.freedesktop.portal.Settings"
	appearanceNS    = "org.freedesktop.appearance"
	colorSchemeKey  = "color-scheme"
	settingsChanged = settingsIface + ".SettingChanged"
)

// Portal follows org.freedesktop.appearance color-scheme through the XDG
// desktop portal on the session bus.
type Portal struct {
	logger *log.Logger

	mu      sync.Mutex
	conn    *dbus.Conn
	signals chan *dbus.Signal
	done    chan struct{}
	wg      sync.WaitGroup
}

func NewPortal() *Portal {
	return &Portal{logger: log.ForService("source")}
}

func (p *Portal) Current() (theme.Theme, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return theme.Light, fmt.Errorf("connecting to session bus: %w", err)
	}
	defer conn.Close()
	return readColorScheme(conn)
}

func readColorScheme(conn *dbus.Conn) (theme.Theme, error) {
	obj := conn.Object(portalDest, portalPath)

	var v dbus.Variant
	err := obj.Call(settingsIface+".ReadOne", 0, appearanceNS, colorSchemeKey).Store(&v)
	if err != nil {
		// Portals older than version 2 only implement the deprecated Read.
		if rerr := obj.Call(settingsIface+".Read", 0, appearanceNS, colorSchemeKey).Store(&v); rerr != nil {
			return theme.Light, fmt.Errorf("reading %s %s: %w", appearanceNS, colorSchemeKey, err)
		}
	}
	t, ok := colorSchemeTheme(v.Value())
	if !ok {
		return theme.Light, fmt.Errorf("unexpected %s value %v", colorSchemeKey, v)
	}
	return t, nil
}

// colorSchemeTheme maps the portal value (1 = prefer dark, 0 = no
// preference, 2 = prefer light) to a theme, unwrapping nested variants.
func colorSchemeTheme(v any) (theme.Theme, bool) {
	for {
		inner, ok := v.(dbus.Variant)
		if !ok {
			break
		}
		v = inner.Value()
	}
	switch n := v.(type) {
	case uint32:
		return themeFor(n == 1), true
	case int32:
		return themeFor(n == 1), true
	}
	return theme.Light, false
}

func themeFor(dark bool) theme.Theme {
	if dark {
		return theme.Dark
	}
	return theme.Light
}

func (p *Portal) Start(cb Callback) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return fmt.Errorf("portal source already started")
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connecting to session bus: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(portalPath),
		dbus.WithMatchInterface(settingsIface),
		dbus.WithMatchMember("SettingChanged"),
	); err != nil {
		_ = conn.Close()
		return fmt.Errorf("subscribing to portal settings: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	done := make(chan struct{})
	conn.Signal(signals)
	p.conn, p.signals, p.done = conn, signals, done

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-done:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if t, ok := settingChange(sig); ok {
					cb(t)
				}
			}
		}
	}()
	p.logger.Infof("following %s %s via the desktop portal", appearanceNS, colorSchemeKey)
	return nil
}

// settingChange extracts the theme from a SettingChanged signal for the
// color-scheme key.
func settingChange(sig *dbus.Signal) (theme.Theme, bool) {
	if sig == nil || sig.Name != settingsChanged || len(sig.Body) != 3 {
		return theme.Light, false
	}
	ns, _ := sig.Body[0].(string)
	key, _ := sig.Body[1].(string)
	if ns != appearanceNS || key != colorSchemeKey {
		return theme.Light, false
	}
	return colorSchemeTheme(sig.Body[2])
}

func (p *Portal) Stop() error {
	p.mu.Lock()
	conn, signals, done := p.conn, p.signals, p.done
	p.conn, p.signals, p.done = nil, nil, nil
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	conn.RemoveSignal(signals)
	close(done)
	p.wg.Wait()
	return conn.Close()
}
