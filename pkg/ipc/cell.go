package ipc

import (
	"sync"

	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// Cell holds the most recently observed theme so that new connections can
// be synchronized immediately.
type Cell struct {
	mu    sync.RWMutex
	theme theme.Theme
	set   bool
}

// Set replaces the stored theme.
func (c *Cell) Set(t theme.Theme) {
	c.mu.Lock()
	c.theme = t
	c.set = true
	c.mu.Unlock()
}

// Get returns the stored theme and whether one was ever set.
func (c *Cell) Get() (theme.Theme, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.theme, c.set
}
