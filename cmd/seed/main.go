package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/restwell/internal/loadgen"
	"github.com/okian/restwell/pkg/logger"
)

// Default configuration constants.
const (
	defaultUsers     = 20
	defaultThreshold = 50
	defaultRecords   = 3
	defaultWorkers   = 2 // multiplier for runtime.NumCPU()
	defaultTimeout   = 30 * time.Second
	defaultSettle    = 30 * time.Second
	defaultRunLimit  = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:5000", "Base URL of the service")
		users      = flag.Int("users", defaultUsers, "Number of synthetic users")
		threshold  = flag.Int("threshold", defaultThreshold, "Content threshold the service runs with")
		records    = flag.Int("records", defaultRecords, "Recommendation records per experienced user")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle     = flag.Duration("settle", defaultSettle, "Maximum wait for queued history to be stored")
		useImport  = flag.Bool("import", false, "Send each history through /history/import")
		seed       = flag.Uint64("seed", 0, "Generator seed (default: from clock)")
		outputFile = flag.String("output", "", "Write generated histories to this JSON file")
		logFile    = flag.String("log", "", "Also write log output to this file")
		verbose    = flag.Bool("verbose", false, "Enable debug logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	closeLog, err := loadgen.SetupLogging(*logFile, *verbose)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, defaultRunLimit)

	err = loadgen.Run(ctx, &loadgen.Config{
		BaseURL:    *baseURL,
		Users:      *users,
		Threshold:  *threshold,
		Records:    *records,
		Workers:    *workers,
		Timeout:    *timeout,
		Settle:     *settle,
		Import:     *useImport,
		Seed:       *seed,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	})
	cancel()
	stop()
	if err != nil {
		logger.Get().Error(context.Background(), "seed run failed", logger.Error(err))
		closeLog()
		os.Exit(1)
	}
	closeLog()
}
