package dispatch

import (
	"github.com/rubiojr/theme-switcher/pkg/log"
	"github.com/rubiojr/theme-switcher/pkg/theme"
)

// LoggingConsumer announces every change on the "theme" logger.
type LoggingConsumer struct {
	logger *log.Logger
}

func NewLoggingConsumer() *LoggingConsumer {
	return &LoggingConsumer{logger: log.ForService("theme")}
}

func (l *LoggingConsumer) OnThemeChange(t theme.Theme) {
	l.logger.Infof("Theme changed to: %s", t)
	l.logger.Infof("Executing %s theme actions...", t)
}

func (l *LoggingConsumer) String() string { return "logging" }
