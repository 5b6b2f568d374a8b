package loadgen

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/restwell/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging initialises the global logger, mirroring output to logFile
// when one is given. The returned func closes the file.
func SetupLogging(logFile string, verbose bool) (func(), error) {
	var w io.Writer = os.Stdout
	closeFn := func() {}
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		w = io.MultiWriter(os.Stdout, file)
		closeFn = func() { _ = file.Close() }
	}

	if err := logger.Init(logger.WithWriter(w)); err != nil {
		closeFn()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return closeFn, nil
}

// ShowHelp prints usage information for the seed tool.
func ShowHelp() {
	_, _ = os.Stdout.WriteString(`Restwell Seed Tool
==================

Seeds a running restwell service with synthetic user histories, then asks
for a recommendation per user and checks the routing: users holding at least
-threshold readings must get a content-based technique, the rest cold-start
advisories.

Usage:
  go run ./cmd/seed [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:5000")
  -users int
        Number of synthetic users, half above the threshold (default 20)
  -threshold int
        Content threshold the service runs with (default 50)
  -records int
        Recommendation records per experienced user (default 3)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -settle duration
        Maximum wait for queued history to be stored (default 30s)
  -import
        Send each history through /history/import in one request
  -seed uint
        Generator seed for reproducible histories (default: from clock)
  -output string
        Write generated histories to this JSON file
  -log string
        Also write log output to this file
  -verbose
        Enable debug logging
  -help
        Show this help message

Examples:
  # Seed a local service with defaults
  go run ./cmd/seed

  # Service started with RESTWELL_CONTENT_THRESHOLD=10
  go run ./cmd/seed -threshold 10 -users 100

  # Reproducible bulk import
  go run ./cmd/seed -import -seed 42 -output histories.json
`)
}
