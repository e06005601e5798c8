package log

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Module names line-E translation logs under. Decode covers opcode/EA
// decoding, Dispatch covers table lookups and illegal-instruction
// handling, Emit covers the per-family code generators, Peephole covers
// the byte-swap idiom match.
const (
	Decode   = "decode"
	Dispatch = "dispatch"
	Emit     = "emit"
	Peephole = "peephole"
)

var root atomic.Value

func init() {
	root.Store(NewLogger(DiscardHandler()))
	DisableModule(Decode)
}

func ParseLevel(lvl string) (slog.Level, error) {
	switch strings.ToUpper(lvl) {
	case "MAX", "MAXVERBOSITY":
		return levelMaxVerbosity, nil
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "CRIT", "CRITICAL":
		return LevelCrit, nil
	default:
		return 0, fmt.Errorf("invalid level: %s", lvl)
	}
}

// InitLogger installs a terminal handler at the given level as the
// default logger, for a CLI entrypoint's -loglevel flag.
func InitLogger(logLevel string) {
	lvl, err := ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "log: %v\n", err)
		os.Exit(1)
	}
	SetDefault(NewLogger(NewTerminalHandlerWithLevel(os.Stderr, lvl, true)))
}

// SetDefault installs l as the logger every package-level Info/Warn/...
// call writes through.
func SetDefault(l Logger) {
	root.Store(l)
}

// Root returns the currently installed default logger.
func Root() Logger {
	return root.Load().(Logger)
}

var defaultKnownModules = []string{Decode, Dispatch, Emit, Peephole}

var moduleEnabled = func() map[string]bool {
	m := make(map[string]bool, len(defaultKnownModules))
	for _, mod := range defaultKnownModules {
		m[mod] = true
	}
	return m
}()

// EnableModule turns logging on for module.
func EnableModule(module string) {
	moduleEnabled[module] = true
}

// DisableModule turns logging off for module. Decode is disabled by
// default since it fires once per guest opcode in a tight loop and
// floods the terminal at anything above a quick smoke test.
func DisableModule(module string) {
	moduleEnabled[module] = false
}

func isModuleEnabled(module string) bool {
	enabled, ok := moduleEnabled[module]
	return ok && enabled
}

// Trace logs a message at the trace level for module, unless module has
// been disabled.
func Trace(module string, msg string, ctx ...interface{}) {
	if !isModuleEnabled(module) {
		return
	}
	Root().Write(LevelTrace, module, msg, ctx...)
}

// Debug logs a message at the debug level for module, unless module has
// been disabled.
func Debug(module string, msg string, ctx ...interface{}) {
	if !isModuleEnabled(module) {
		return
	}
	Root().Write(slog.LevelDebug, module, msg, ctx...)
}

// Info, Warn, Error and Crit always log regardless of per-module
// enablement: a line-E translation failure or illegal-opcode trap is
// worth seeing no matter which module raised it.
func Info(module string, msg string, ctx ...interface{}) {
	Root().Write(slog.LevelInfo, module, msg, ctx...)
}

func Warn(module string, msg string, ctx ...interface{}) {
	Root().Write(slog.LevelWarn, module, msg, ctx...)
}

func Error(module string, msg string, ctx ...interface{}) {
	Root().Write(slog.LevelError, module, msg, ctx...)
}

func Crit(module string, msg string, ctx ...interface{}) {
	Root().Write(LevelCrit, module, msg, ctx...)
	os.Exit(1)
}

func New(ctx ...interface{}) Logger {
	return Root().New(ctx...)
}
