package whatsapp

import (
	"fmt"
	"strings"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/garyellow/whatsapp-commerce-bot/internal/logger"
)

var levels = map[string]int{"DEBUG": 0, "INFO": 1, "WARN": 2, "ERROR": 3}

// waLogger routes whatsmeow's logs into the application logger, filtered
// by WHATSAPP_LOG_LEVEL.
type waLogger struct {
	log   *logger.Logger
	min   int
	scope string
}

// newWALogger returns a whatsmeow logger. Unknown levels mean WARN.
func newWALogger(log *logger.Logger, level, scope string) waLog.Logger {
	lvl, ok := levels[strings.ToUpper(level)]
	if !ok {
		lvl = levels["WARN"]
	}
	return &waLogger{log: log.WithField("wa_scope", scope), min: lvl, scope: scope}
}

func (l *waLogger) Debugf(msg string, args ...any) {
	if l.min <= 0 {
		l.log.Debugf(msg, args...)
	}
}

func (l *waLogger) Infof(msg string, args ...any) {
	if l.min <= 1 {
		l.log.Infof(msg, args...)
	}
}

func (l *waLogger) Warnf(msg string, args ...any) {
	if l.min <= 2 {
		l.log.Warnf(msg, args...)
	}
}

func (l *waLogger) Errorf(msg string, args ...any) {
	l.log.Errorf(msg, args...)
}

func (l *waLogger) Sub(module string) waLog.Logger {
	scope := fmt.Sprintf("%s/%s", l.scope, module)
	return &waLogger{log: l.log.WithField("wa_scope", scope), min: l.min, scope: scope}
}
