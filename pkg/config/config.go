// Package config - Build-mode switches for one compilation
// Design: selected once, passed by value to every phase. No global lookup.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
)

// Build holds the switches that change lowering decisions.
type Build struct {
	Opt             int
	Debug           bool
	SourceMap       bool
	EnableException bool
	// EnableStringRef selects stringref strings; when false strings are a
	// struct of a flag word and an i8 array.
	EnableStringRef bool
	Entry           string
	StartSection    bool
	DumpTypes       bool
	LogLevel        string
	LogFormat       string
	// LogDir, when set, sends json logs to a file in that directory.
	LogDir string
}

// Default returns the configuration used when no flags are given.
func Default() Build {
	return Build{
		Opt:             0,
		EnableStringRef: true,
		Entry:           "_entry",
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Validate rejects inconsistent settings.
func (b Build) Validate() error {
	if b.Opt < 0 || b.Opt > 4 {
		return fmt.Errorf("opt level %d out of range 0-4", b.Opt)
	}
	if b.Entry == "" {
		return errors.New("entry function name is empty")
	}
	if _, err := b.Level(); err != nil {
		return err
	}
	if b.LogFormat != "text" && b.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q", b.LogFormat)
	}
	return nil
}

// Level maps the textual log level onto the logger's levels.
func (b Build) Level() (logger.LogLevel, error) {
	switch b.LogLevel {
	case "debug":
		return logger.LevelDebug, nil
	case "info", "":
		return logger.LevelInfo, nil
	case "warn":
		return logger.LevelWarn, nil
	case "error":
		return logger.LevelError, nil
	}
	return logger.LevelInfo, fmt.Errorf("unknown log level %q", b.LogLevel)
}

// LoggerConfig derives the logger configuration for this build.
func (b Build) LoggerConfig(out io.Writer) logger.Config {
	cfg := logger.DefaultConfig()
	if lvl, err := b.Level(); err == nil {
		cfg.Level = lvl
	}
	if b.Debug {
		cfg.Level = logger.LevelDebug
		cfg.AddSource = true
	}
	cfg.Format = b.LogFormat
	if out != nil {
		cfg.Output = out
	}
	return cfg
}

// Parse reads flags from args on top of Default and returns the remaining
// positional arguments.
func Parse(name string, args []string) (Build, []string, error) {
	b := Default()
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&b.Opt, "opt", b.Opt, "optimization level")
	fs.BoolVar(&b.Debug, "debug", b.Debug, "debug build and verbose logging")
	fs.BoolVar(&b.SourceMap, "sourcemap", b.SourceMap, "emit a source map")
	fs.BoolVar(&b.EnableException, "exceptions", b.EnableException, "enable exception handling")
	fs.BoolVar(&b.EnableStringRef, "stringref", b.EnableStringRef, "lower strings to stringref")
	fs.StringVar(&b.Entry, "entry", b.Entry, "entry function name")
	fs.BoolVar(&b.StartSection, "start-section", b.StartSection, "call the entry from the start section")
	fs.BoolVar(&b.DumpTypes, "dump-types", b.DumpTypes, "print the resolved type graph")
	fs.StringVar(&b.LogLevel, "log-level", b.LogLevel, "debug, info, warn or error")
	fs.StringVar(&b.LogFormat, "log-format", b.LogFormat, "text or json")
	fs.StringVar(&b.LogDir, "log-dir", b.LogDir, "write json logs to this directory")
	if err := fs.Parse(args); err != nil {
		return b, nil, err
	}
	if err := b.Validate(); err != nil {
		return b, nil, err
	}
	return b, fs.Args(), nil
}
