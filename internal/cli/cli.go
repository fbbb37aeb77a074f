package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/rulegrid/internal/app"
	"github.com/vk/rulegrid/internal/engine"
)

// Exit codes returned through ExitError.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("rulegrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
rulegrid - computes requested products for build subjects from declarative rules.

Usage:
  rulegrid [options] [BUILD_PATH]

Arguments:
  BUILD_PATH
    Path to a single .hcl file or a directory of .hcl files declaring
    subjects and roots.

Options:
`)
		flagSet.PrintDefaults()
	}

	buildFlag := flagSet.String("build", "", "Path to the build file or directory.")
	bFlag := flagSet.String("b", "", "Path to the build file or directory (shorthand).")
	rulesFlag := flagSet.String("rules", "rules", "Path to the types and rules file or directory. Skipped if missing.")
	workersFlag := flagSet.Int("workers", engine.DefaultWorkers, "Number of task bodies allowed to run at once.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	visualizeFlag := flagSet.String("visualize", "", "Write a Graphviz rendering of the executed graph to this file.")
	traceFlag := flagSet.String("trace", "", "Append the failure trace of every failed root to this file.")
	otlpFlag := flagSet.String("otlp-endpoint", "", "OTLP/gRPC collector address for spans. Empty disables tracing.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	path := ""
	switch {
	case *buildFlag != "":
		path = *buildFlag
	case *bFlag != "":
		path = *bFlag
	case flagSet.NArg() > 0:
		path = flagSet.Arg(0)
	}
	slog.Debug("Build path determined.", "path", path)

	if path == "" {
		slog.Debug("No build path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("expected one BUILD_PATH, got %d arguments", flagSet.NArg())}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *workersFlag < 1 {
		return nil, false, &ExitError{Code: ExitUsage, Message: "invalid workers: must be at least 1"}
	}

	config, err := app.NewConfig(app.Config{
		BuildPath:       path,
		RulesPath:       *rulesFlag,
		Workers:         *workersFlag,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		HealthcheckPort: *healthPortFlag,
		VisualizePath:   *visualizeFlag,
		TracePath:       *traceFlag,
		OTLPEndpoint:    *otlpFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "build_path", config.BuildPath, "rules_path", config.RulesPath)
	return config, false, nil
}
