// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bureau-foundation/clusterbridge/lib/config"
)

// newLogger builds the daemon logger and installs it as the default.
// Format "auto" picks text when stderr is a terminal and JSON
// otherwise, so journald and log shippers get structured records. A
// configured log file is always JSON. Close the returned closer on
// exit to flush the file.
func newLogger(logConfig config.LogConfig) (*slog.Logger, io.Closer) {
	options := &slog.HandlerOptions{Level: parseLevel(logConfig.Level)}

	var output io.Writer = os.Stderr
	var closer io.Closer = io.NopCloser(nil)
	useText := logConfig.Format == "text"
	if logConfig.File != "" {
		file := &lumberjack.Logger{
			Filename:   logConfig.File,
			MaxSize:    logConfig.MaxSizeMB,
			MaxBackups: logConfig.MaxBackups,
			MaxAge:     logConfig.MaxAgeDays,
			Compress:   true,
		}
		output, closer = file, file
	} else if logConfig.Format == "auto" {
		useText = term.IsTerminal(int(os.Stderr.Fd()))
	}

	var handler slog.Handler
	if useText {
		handler = slog.NewTextHandler(output, options)
	} else {
		handler = slog.NewJSONHandler(output, options)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, closer
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
