package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
)

// DiscardHandler returns a handler that drops every record, the default
// installed before InitLogger runs so a library consumer gets silence
// rather than an unconfigured logger racing to stderr.
func DiscardHandler() slog.Handler {
	return discardHandler{}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (h discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h discardHandler) WithGroup(string) slog.Handler           { return h }

// terminalHandler formats records as "LEVEL module msg k=v k=v ...", one
// line per record, matching the level-aligned column layout most of the
// CLI tools in this codebase print to stderr.
type terminalHandler struct {
	mu     sync.Mutex
	w      io.Writer
	level  slog.Level
	color  bool
	attrs  []slog.Attr
	groups []string
}

// NewTerminalHandlerWithLevel returns a handler that writes level-filtered,
// human-readable lines to w. useColor is stored on the handler but never
// consulted: output is always uncolored.
func NewTerminalHandlerWithLevel(w io.Writer, level slog.Level, useColor bool) slog.Handler {
	return &terminalHandler{w: w, level: level, color: useColor}
}

func (h *terminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	module := ""
	kv := make(map[string]slog.Value, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		if a.Key == "module" {
			module = a.Value.String()
			continue
		}
		kv[a.Key] = a.Value
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "module" {
			module = a.Value.String()
			return true
		}
		kv[a.Key] = a.Value
		return true
	})

	fmt.Fprintf(h.w, "%s %-10s %s", LevelAlignedString(r.Level), module, r.Message)
	keys := make([]string, 0, len(kv))
	for k := range kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h.w, " %s=%s", k, kv[k])
	}
	fmt.Fprintln(h.w)
	return nil
}

func (h *terminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &terminalHandler{w: h.w, level: h.level, color: h.color, attrs: merged, groups: h.groups}
}

func (h *terminalHandler) WithGroup(name string) slog.Handler {
	return &terminalHandler{w: h.w, level: h.level, color: h.color, attrs: h.attrs, groups: append(append([]string{}, h.groups...), name)}
}
