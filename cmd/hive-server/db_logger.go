package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// slogBadgerAdapter forwards badger logs to slog, one record per line.
// Badger info logs are noisy and demoted to debug.
type slogBadgerAdapter struct{}

func logLines(level slog.Level, f string, details ...any) {
	for line := range strings.SplitSeq(fmt.Sprintf(f, details...), "\n") {
		if line != "" {
			slog.Log(context.Background(), level, "badger", "msg", line)
		}
	}
}

func (slogBadgerAdapter) Errorf(f string, details ...any) {
	logLines(slog.LevelError, f, details...)
}

func (slogBadgerAdapter) Warningf(f string, details ...any) {
	logLines(slog.LevelWarn, f, details...)
}

func (slogBadgerAdapter) Infof(f string, details ...any) {
	logLines(slog.LevelDebug, f, details...)
}

func (slogBadgerAdapter) Debugf(f string, details ...any) {
	logLines(slog.LevelDebug, f, details...)
}
