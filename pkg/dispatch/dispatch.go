// Package dispatch turns a single theme-change signal into calls on an
// ordered set of independent consumers.
package dispatch

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/rubiojr/theme-switcher/pkg/log"
	"github.com/rubiojr/theme-switcher/pkg/metrics"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// ErrSealed is returned by Register once the dispatcher has delivered its
// first event.
var ErrSealed = errors.New("dispatcher already running")

// Consumer reacts to a theme change. Implementations report their own
// failures; OnThemeChange has no return value.
type Consumer interface {
	OnThemeChange(t theme.Theme)
}

// ConsumerFunc adapts a plain function to Consumer.
type ConsumerFunc func(t theme.Theme)

func (f ConsumerFunc) OnThemeChange(t theme.Theme) { f(t) }

// Dispatcher invokes every registered consumer, in registration order, on
// the caller's goroutine.
type Dispatcher struct {
	mu        sync.Mutex
	consumers []Consumer
	sealed    bool
	logger    *log.Logger
}

func New() *Dispatcher {
	return &Dispatcher{logger: log.ForService("dispatch")}
}

// Register appends c to the consumer set. Registration is closed after the
// first Dispatch.
func (d *Dispatcher) Register(c Consumer) error {
	if c == nil {
		return errors.New("nil consumer")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sealed {
		return ErrSealed
	}
	d.consumers = append(d.consumers, c)
	return nil
}

// Len returns the number of registered consumers.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.consumers)
}

// Dispatch delivers t to each consumer in turn. A consumer that panics is
// logged and skipped; the remaining consumers still run.
func (d *Dispatcher) Dispatch(t theme.Theme) {
	d.mu.Lock()
	d.sealed = true
	consumers := d.consumers
	d.mu.Unlock()

	metrics.EventsDispatched.WithLabelValues(t.String()).Inc()
	d.logger.Debugf("dispatching %s to %d consumers", t, len(consumers))

	for _, c := range consumers {
		d.invoke(c, t)
	}
}

// OnThemeChange lets a Dispatcher be nested inside another one.
func (d *Dispatcher) OnThemeChange(t theme.Theme) {
	d.Dispatch(t)
}

func (d *Dispatcher) invoke(c Consumer, t theme.Theme) {
	defer func() {
		if r := recover(); r != nil {
			name := Name(c)
			metrics.ConsumerFailures.WithLabelValues(name).Inc()
			d.logger.Errorf("consumer %s panicked on %s: %v\n%s", name, t, r, debug.Stack())
		}
	}()
	c.OnThemeChange(t)
}

// Name returns a label for c: its String method when present, otherwise
// its dynamic type.
func Name(c Consumer) string {
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", c)
}
