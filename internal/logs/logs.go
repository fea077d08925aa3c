// Package logs installs the default slog handler.
//
// Importing it for side effects is enough:
//
//	import _ "github.com/jackadi-io/hive/internal/logs"
package logs

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

const levelEnv = "HIVE_LOG_LEVEL"

func init() {
	slog.SetDefault(slog.New(NewHandler(os.Getenv(levelEnv))))
}

// NewHandler returns a colored handler writing to stderr at the given level.
func NewHandler(level string) slog.Handler {
	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:      ParseLevel(level),
		TimeFormat: time.DateTime,
	})
}

// ParseLevel converts a level name to a slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
