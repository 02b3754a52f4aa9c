package logging

import (
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
)

// waLogger routes whatsmeow's printf-style logging into zap.
type waLogger struct {
	s *zap.SugaredLogger
}

// WhatsmeowLogger adapts a zap logger to whatsmeow's waLog.Logger.
// Sub-modules become named child loggers ("whatsmeow.Client", "whatsmeow.Database").
func WhatsmeowLogger(logger *zap.Logger) waLog.Logger {
	return &waLogger{s: logger.Named("whatsmeow").Sugar()}
}

func (l *waLogger) Warnf(msg string, args ...any)  { l.s.Warnf(msg, args...) }
func (l *waLogger) Errorf(msg string, args ...any) { l.s.Errorf(msg, args...) }
func (l *waLogger) Infof(msg string, args ...any)  { l.s.Infof(msg, args...) }
func (l *waLogger) Debugf(msg string, args ...any) { l.s.Debugf(msg, args...) }

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{s: l.s.Named(module)}
}
