package util

import (
	"io"
	"strings"

	"github.com/pterm/pterm"
)

func Fatal(err error) {
	if err != nil {
		pterm.Fatal.Println(err)
	}
}

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(level string, writer io.Writer) *pterm.Logger {
	logger := pterm.DefaultLogger.WithLevel(ParseLogLevel(level))
	if writer != nil {
		logger = logger.WithWriter(writer)
	}
	return logger
}

// NopLogger discards everything; used by tests and library callers that do
// not care about diagnostics.
func NopLogger() *pterm.Logger {
	return pterm.DefaultLogger.WithLevel(pterm.LogLevelDisabled).WithWriter(io.Discard)
}

func ParseLogLevel(level string) pterm.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return pterm.LogLevelTrace
	case "debug":
		return pterm.LogLevelDebug
	case "warn", "warning":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	case "off", "disabled":
		return pterm.LogLevelDisabled
	}
	return pterm.LogLevelInfo
}
