// Package logger provides standardized logging utilities for the tswasm compiler
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Global logger instance
var defaultLogger *slog.Logger

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level     LogLevel
	Format    string // "text" or "json"
	Output    io.Writer
	AddSource bool
	LogFile   string
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     LevelInfo,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: false,
	}
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	var handler slog.Handler

	output := cfg.Output
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		output = file
	}

	opts := &slog.HandlerOptions{
		Level:     toSlogLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)

	return nil
}

// InitDev initializes logging for development (debug level, text format)
func InitDev() {
	_ = Init(Config{
		Level:     LevelDebug,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: true,
	})
}

// InitProd initializes logging for production (info level, json format)
func InitProd(logDir string) error {
	logPath := filepath.Join(logDir, "tswasm-compiler.log")
	return Init(Config{
		Level:     LevelInfo,
		Format:    "json",
		LogFile:   logPath,
		AddSource: false,
	})
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...any) {
	if defaultLogger != nil {
		defaultLogger.Error(msg, args...)
	}
}

// With returns a new logger with the given attributes
func With(args ...any) *slog.Logger {
	if defaultLogger != nil {
		return defaultLogger.With(args...)
	}
	return slog.Default().With(args...)
}

// WithGroup returns a new logger with the given group
func WithGroup(name string) *slog.Logger {
	if defaultLogger != nil {
		return defaultLogger.WithGroup(name)
	}
	return slog.Default().WithGroup(name)
}

// Compiler-specific logging helpers

// LogPhase logs the start of a compilation phase
func LogPhase(phase string) {
	Info("Starting compilation phase", "phase", phase)
}

// LogPhaseComplete logs the completion of a compilation phase
func LogPhaseComplete(phase string, items int) {
	Info("Completed compilation phase", "phase", phase, "items", items)
}

// LogTypeResolved logs a declaration entering the type graph
func LogTypeResolved(name string, kind string) {
	Debug("Type resolved", "name", name, "kind", kind)
}

// LogSpecialization logs a specialization request and whether it hit the cache
func LogSpecialization(template string, signature string, hit bool) {
	Debug("Specialization", "template", template, "signature", signature, "cached", hit)
}

// LogTypeIDAssigned logs a structural identity assignment
func LogTypeIDAssigned(name string, id int32, recursive bool) {
	Debug("Type id assigned", "type", name, "id", id, "recursive", recursive)
}

// LogRecursionGroup logs a completed recursion group
func LogRecursionGroup(index int, size int) {
	Debug("Recursion group closed", "group", index, "types", size)
}

// LogClosureFrame logs a context frame
func LogClosureFrame(scope string, depth int, slots int) {
	Debug("Closure frame", "scope", scope, "depth", depth, "slots", slots)
}

// LogSlotTable logs a fixed-up member slot table
func LogSlotTable(class string, fields int, vtable int) {
	Debug("Slot table", "class", class, "fields", fields, "vtable", vtable)
}

// LogLowering logs the lowering of one function
func LogLowering(funcName string, exprCount int) {
	Debug("Lowering complete", "function", funcName, "exprs", exprCount)
}

// LogFallback logs an access routed to the dynamic runtime
func LogFallback(owner string, member string, reason string) {
	Debug("Dynamic fallback", "owner", owner, "member", member, "reason", reason)
}

// LogError logs a compilation error
func LogError(phase string, name string, msg string) {
	Error("Compilation error",
		"phase", phase,
		"name", name,
		"message", msg)
}

// LogWarning logs a compilation warning
func LogWarning(phase string, name string, msg string) {
	Warn("Compilation warning",
		"phase", phase,
		"name", name,
		"message", msg)
}

// LogCompilerStart logs compiler startup
func LogCompilerStart(args []string) {
	Info("tswasm compiler starting", "args", args)
}

// LogCompilerComplete logs compiler completion
func LogCompilerComplete(success bool, duration string) {
	if success {
		Info("Compilation successful", "duration", duration)
	} else {
		Error("Compilation failed", "duration", duration)
	}
}

// LogFileProcessing logs file processing start
func LogFileProcessing(file string) {
	Info("Processing file", "file", file)
}
