package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

var rotating *lumberjack.Logger

// Setup installs the default slog logger. Records go to stdout as JSON and,
// when file is set, to a size-rotated copy on disk.
func Setup(level, file string) *slog.Logger {
	var out io.Writer = os.Stdout
	if file != "" {
		rotating = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     7, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
	}

	l := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
	slog.SetDefault(l)

	l.Info("logger initialized", "level", level, "file", file)
	return l
}

// Close releases the rotated log file, if any.
func Close() error {
	if rotating != nil {
		return rotating.Close()
	}
	return nil
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
