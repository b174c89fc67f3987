package main

import (
	"fmt"
	"os"

	"github.com/1risS/in.organico/options"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

// setupLogging installs the default logger. In auto format, a terminal gets
// text and anything else gets JSON.
func setupLogging(o options.Log, sessionID string) error {
	level, err := log.ParseLevel(o.Level)
	if err != nil {
		return fmt.Errorf("log level %q: %w", o.Level, err)
	}
	formatter := log.TextFormatter
	switch o.Format {
	case "json":
		formatter = log.JSONFormatter
	case "auto":
		fd := os.Stderr.Fd()
		if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
			formatter = log.JSONFormatter
		}
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		Formatter:       formatter,
		ReportTimestamp: true,
	})
	log.SetDefault(logger.With("session", sessionID))
	return nil
}
