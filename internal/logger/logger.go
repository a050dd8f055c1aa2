package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup returns a JSON slog.Logger writing to w at Info level.
func Setup(w io.Writer) *slog.Logger {
	return SetupLevel(w, slog.LevelInfo)
}

// SetupLevel is Setup with an explicit minimum level.
func SetupLevel(w io.Writer, level slog.Leveler) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})
	return slog.New(handler)
}

// SetupDefault installs a JSON logger as the process-wide default. A nil
// writer means os.Stdout.
func SetupDefault(w io.Writer) *slog.Logger {
	l := Setup(w)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps debug|info|warn|error to a slog level. Anything else is Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
