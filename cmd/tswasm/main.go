// Package main implements the tswasm compiler driver.
package main

import (
	"fmt"
	"os"

	"github.com/GriffinCanCode/tswasm-compiler/pkg/compiler"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/config"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/frontend"
	"github.com/GriffinCanCode/tswasm-compiler/pkg/logger"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error
	switch cmd {
	case "layout":
		err = layoutCmd(os.Args[2:])
	case "inspect":
		err = inspectCmd(os.Args[2:])
	case "version":
		fmt.Printf("tswasm compiler version %s\n", version)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`tswasm - Object-model compiler core for a TypeScript-like language

Usage:
    tswasm layout <unit.json> [flags]   Print type ids, recursion groups and slot tables
    tswasm inspect <unit.json> [flags]  Explore the layout of a unit interactively
    tswasm version                      Show compiler version
    tswasm help                         Show this help message

Flags:
    -stringref        Lower strings to stringref (default true)
    -entry <name>     Entry function name (default _entry)
    -dump-types       Also print every resolved type
    -log-level <lvl>  debug, info, warn or error
    -log-format <f>   text or json
    -log-dir <dir>    Write json logs to <dir>/tswasm-compiler.log
    -debug            Verbose logging`)
}

// initLogging picks the logger setup for cfg. A log directory wins over
// -debug, which wins over the level and format flags.
func initLogging(cfg config.Build) error {
	switch {
	case cfg.LogDir != "":
		return logger.InitProd(cfg.LogDir)
	case cfg.Debug:
		logger.InitDev()
		return nil
	}
	return logger.Init(cfg.LoggerConfig(os.Stderr))
}

// load parses flags, initialises logging and analyzes the unit named by
// the first positional argument.
func load(name string, args []string) (*compiler.Unit, error) {
	var path string
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		path, args = args[0], args[1:]
	}
	cfg, rest, err := config.Parse(name, args)
	if err != nil {
		return nil, err
	}
	if path == "" && len(rest) > 0 {
		path = rest[0]
	}
	if path == "" {
		return nil, fmt.Errorf("no input unit")
	}
	if err := initLogging(cfg); err != nil {
		return nil, err
	}
	logger.LogCompilerStart(os.Args)
	logger.LogFileProcessing(path)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	src, err := frontend.Decode(f)
	if err != nil {
		return nil, err
	}
	return compiler.Analyze(cfg, src)
}

func layoutCmd(args []string) error {
	u, err := load("layout", args)
	if err != nil {
		return err
	}
	if u.Config.DumpTypes {
		printTypes(os.Stdout, u)
	}
	printLayout(os.Stdout, u)
	return nil
}
