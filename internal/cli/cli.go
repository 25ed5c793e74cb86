package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/npurunner/internal/app"
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
	flagSet := flag.NewFlagSet("npurunner", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
npurunner - executes NPU recipes and profiles them.

Usage:
  npurunner [options] [RECIPE]

Arguments:
  RECIPE
    Path to a recipe description (.json or .hcl), or the recipe JSON itself.

Options:
`)
		flagSet.PrintDefaults()
	}

	recipeFlag := flagSet.String("recipe", "", "Recipe description file or inline JSON.")
	rFlag := flagSet.String("r", "", "Recipe description (shorthand).")
	profileFlag := flagSet.String("profile", "", "Profile description file or inline JSON.")
	artifactsFlag := flagSet.String("artifacts", "", "Root directory of artifacts. Defaults to the recipe's directory.")
	libraryRootFlag := flagSet.String("library-root", "", "Directory prepended to relative cpu library names.")
	thresholdFlag := flagSet.Int("runlist-threshold", 0, "Overrides the recipe's runlist threshold. 0 keeps the recipe's value.")
	iterationsFlag := flagSet.Int("iterations", 1, "Number of executions without a profile.")
	reportURLFlag := flagSet.String("report-url", "", "socket.io endpoint the report is published to.")
	reportNSFlag := flagSet.String("report-namespace", "/", "socket.io namespace for the report.")
	healthPortFlag := flagSet.Int("healthcheck-port", 0, "Port for the HTTP health check server. 0 is disabled.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	recipe := ""
	switch {
	case *recipeFlag != "":
		recipe = *recipeFlag
	case *rFlag != "":
		recipe = *rFlag
	case flagSet.NArg() > 0:
		recipe = flagSet.Arg(0)
	}

	if recipe == "" {
		slog.Debug("No recipe provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	if flagSet.NArg() > 1 {
		return nil, false, &ExitError{Code: 2, Message: fmt.Sprintf("unexpected arguments: %s", strings.Join(flagSet.Args()[1:], " "))}
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		RecipePath:       recipe,
		ProfilePath:      *profileFlag,
		ArtifactsRoot:    *artifactsFlag,
		LibraryRoot:      *libraryRootFlag,
		RunlistThreshold: *thresholdFlag,
		Iterations:       *iterationsFlag,
		ReportURL:        *reportURLFlag,
		ReportNamespace:  *reportNSFlag,
		LogFormat:        logFormat,
		LogLevel:         logLevel,
		HealthcheckPort:  *healthPortFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
