package migrate

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// gooseLogger routes goose output through slog under the "migrate" component.
type gooseLogger struct {
	logger *slog.Logger
}

func newGooseLogger(logger *slog.Logger) gooseLogger {
	if logger == nil {
		return gooseLogger{}
	}
	return gooseLogger{logger: logger.With("component", "migrate")}
}

func (l gooseLogger) Printf(format string, v ...any) {
	if l.logger == nil {
		return
	}
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	if l.logger != nil {
		l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
	}
	os.Exit(1)
}
