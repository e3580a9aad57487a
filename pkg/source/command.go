package source

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rubiojr/theme-switcher/pkg/log"
	"github.com/rubiojr/theme-switcher/pkg/script"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// DefaultInterval is the polling period of a Command source.
const DefaultInterval = 2 * time.Second

// Command polls a shell command. Output mentioning "dark" means dark,
// anything else (including a failing command) means light. Only
// transitions are reported, the way an OS observer would.
type Command struct {
	cmdline  string
	interval time.Duration
	logger   *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewCommand(cmdline string, interval time.Duration) *Command {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Command{cmdline: cmdline, interval: interval, logger: log.ForService("source")}
}

func (c *Command) Current() (theme.Theme, error) {
	return c.query(context.Background())
}

func (c *Command) query(ctx context.Context) (theme.Theme, error) {
	res, err := script.RunCommand(ctx, c.cmdline, nil)
	if err != nil {
		return theme.Light, fmt.Errorf("running %q: %w", c.cmdline, err)
	}
	if strings.Contains(strings.ToLower(res.Stdout), "dark") {
		return theme.Dark, nil
	}
	return theme.Light, nil
}

func (c *Command) Start(cb Callback) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return fmt.Errorf("command source already started")
	}

	last, err := c.Current()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t, err := c.query(ctx)
				if err != nil {
					if ctx.Err() == nil {
						c.logger.Warnf("%v", err)
					}
					continue
				}
				if t != last {
					last = t
					cb(t)
				}
			}
		}
	}()
	c.logger.Infof("polling %q every %s", c.cmdline, c.interval)
	return nil
}

func (c *Command) Stop() error {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
	return nil
}
