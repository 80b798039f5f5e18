// Package logging provides the runtime.Logger used outside a Nakama process.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/pterm/pterm"
)

// Logger adapts slog to the Nakama runtime.Logger interface so the same
// components run unchanged inside and outside Nakama.
type Logger struct {
	sl     *slog.Logger
	fields map[string]interface{}
}

// New builds a pterm-backed logger at the given level (debug, info, warn, error).
// A nil w writes to the terminal; json selects pterm's JSON formatter.
func New(level string, w io.Writer, json bool) *Logger {
	pl := pterm.DefaultLogger.WithLevel(ParseLevel(level))
	if w != nil {
		pl = pl.WithWriter(w)
	}
	if json {
		pl = pl.WithFormatter(pterm.LogFormatterJSON)
	}
	return FromHandler(pterm.NewSlogHandler(pl))
}

// FromHandler wraps an arbitrary slog handler.
func FromHandler(h slog.Handler) *Logger {
	return &Logger{sl: slog.New(h), fields: map[string]interface{}{}}
}

// ParseLevel maps a config level name to a pterm level; unknown names mean info.
func ParseLevel(level string) pterm.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return pterm.LogLevelTrace
	case "debug":
		return pterm.LogLevelDebug
	case "warn", "warning":
		return pterm.LogLevelWarn
	case "error":
		return pterm.LogLevelError
	}
	return pterm.LogLevelInfo
}

func (l *Logger) Debug(format string, v ...interface{}) { l.sl.Debug(fmt.Sprintf(format, v...)) }
func (l *Logger) Info(format string, v ...interface{})  { l.sl.Info(fmt.Sprintf(format, v...)) }
func (l *Logger) Warn(format string, v ...interface{})  { l.sl.Warn(fmt.Sprintf(format, v...)) }
func (l *Logger) Error(format string, v ...interface{}) { l.sl.Error(fmt.Sprintf(format, v...)) }

func (l *Logger) WithField(key string, v interface{}) runtime.Logger {
	return l.WithFields(map[string]interface{}{key: v})
}

func (l *Logger) WithFields(fields map[string]interface{}) runtime.Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		merged[k] = v
		args = append(args, k, v)
	}
	return &Logger{sl: l.sl.With(args...), fields: merged}
}

func (l *Logger) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		out[k] = v
	}
	return out
}

// Nop discards everything.
func Nop() runtime.Logger { return nop{} }

type nop struct{}

func (nop) Debug(string, ...interface{})                     {}
func (nop) Info(string, ...interface{})                      {}
func (nop) Warn(string, ...interface{})                      {}
func (nop) Error(string, ...interface{})                     {}
func (nop) WithField(string, interface{}) runtime.Logger     { return nop{} }
func (nop) WithFields(map[string]interface{}) runtime.Logger { return nop{} }
func (nop) Fields() map[string]interface{}                   { return map[string]interface{}{} }

var _ runtime.Logger = (*Logger)(nil)
