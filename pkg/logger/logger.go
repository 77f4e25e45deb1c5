package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Component logger facade. Call sites tag every line with a component name
// ("agent", "outbox", "discord", ...) so logs from concurrent message tasks
// stay attributable.

var (
	mu      sync.RWMutex
	current = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	level   = new(slog.LevelVar)
)

func Setup(w io.Writer, levelName string, jsonFormat bool) {
	mu.Lock()
	defer mu.Unlock()

	level.Set(parseLevel(levelName))
	opts := &slog.HandlerOptions{Level: level}
	if jsonFormat {
		current = slog.New(slog.NewJSONHandler(w, opts))
	} else {
		current = slog.New(slog.NewTextHandler(w, opts))
	}
}

func parseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func attrs(component string, fields map[string]interface{}) []any {
	out := make([]any, 0, 2+2*len(fields))
	out = append(out, "component", component)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}

func DebugC(component, msg string) {
	get().Debug(msg, "component", component)
}

func DebugCF(component, msg string, fields map[string]interface{}) {
	get().Debug(msg, attrs(component, fields)...)
}

func InfoC(component, msg string) {
	get().Info(msg, "component", component)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	get().Info(msg, attrs(component, fields)...)
}

func WarnC(component, msg string) {
	get().Warn(msg, "component", component)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	get().Warn(msg, attrs(component, fields)...)
}

func ErrorC(component, msg string) {
	get().Error(msg, "component", component)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	get().Error(msg, attrs(component, fields)...)
}
