package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sentinelvision/sentinel-go/cmd"
	"github.com/sentinelvision/sentinel-go/internal/conf"
	"github.com/sentinelvision/sentinel-go/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)

	if settings.Log.Path != "" {
		fileLogger, closeLogger, logErr := logging.NewFileLogger(
			settings.Log.Path, "sentinel", level,
			logging.FileLoggerConfig{
				MaxSizeMB:  settings.Log.MaxSizeMB,
				MaxBackups: settings.Log.MaxBackups,
				MaxAgeDays: settings.Log.MaxAgeDays,
			})
		if logErr != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", logErr)
		} else {
			slog.SetDefault(fileLogger)
			defer func() { _ = closeLogger() }()
		}
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
