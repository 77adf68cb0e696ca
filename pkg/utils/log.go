// Kvtier logs through the default slog logger. The flags below pick the handler
// format and the minimum level; InitLogging applies them after flag.Parse().

package utils

import (
	"flag"
	"log/slog"
	"os"
	"strings"
)

var (
	logFormatFlag = flag.String("log_format", "json", "Log output format: json/text")
	logLevelFlag  = flag.String("log_level", "info", "Minimum log level: debug/info/warn/error")
)

// parseLogLevel maps a level name to its slog level, defaulting to info.
func parseLogLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		RaiseInvariant("log", "unsupported_log_level", "Got an unsupported log level.", "logLevel", name)
		return slog.LevelInfo
	}
}

// initLoggingWith configures the default slog logger with the given format and level names.
func initLoggingWith(format, level string) {
	options := slog.HandlerOptions{Level: parseLogLevel(level)}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &options)
	case "text":
		handler = slog.NewTextHandler(os.Stdout, &options)
	default:
		RaiseInvariant("log", "unsupported_log_format", "Got an unsupported log format.", "format", format)
		handler = slog.NewJSONHandler(os.Stdout, &options)
	}

	// `SetDefault` happens atomically and doesn't panic when called in multiple goroutines.
	slog.SetDefault(slog.New(handler))
	slog.Debug("Log handler configured successfully.", "format", format, "level", level)
}

// InitLogging configures the default slog logger. Note that this method must be called after flag.Parse().
func InitLogging() {
	initLoggingWith(strings.ToLower(*logFormatFlag), strings.ToLower(*logLevelFlag))
}
