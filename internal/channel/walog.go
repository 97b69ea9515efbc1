package channel

import (
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogAdapter exposes an *slog.Logger through the waLog.Logger interface
// so whatsmeow's internals log through the same pipeline as the rest of
// the process.
type slogAdapter struct {
	logger *slog.Logger
}

func newWALogger(logger *slog.Logger) waLog.Logger {
	return &slogAdapter{logger: logger}
}

func (a *slogAdapter) Warnf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Infof(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Sub(module string) waLog.Logger {
	return &slogAdapter{logger: a.logger.With("module", module)}
}
