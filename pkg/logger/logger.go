// Package logger builds the zap loggers used across the simulator. The
// engine owns stdout for its observable result lines, so diagnostics
// default to stderr, and every line carries the run id so site,
// data-manager, and engine events from one run can be correlated.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all the configuration for the logger.
type Config struct {
	// Level sets the minimum log level (e.g., "debug", "info", "warn", "error").
	Level string `yaml:"level"`
	// Format specifies the log output format ("json" or "console").
	Format string `yaml:"format"`
	// OutputFile specifies the file to write logs to. "stdout" or "stderr"
	// can be used to log to the console.
	OutputFile string `yaml:"output_file"`
}

// New creates the root logger for one simulator run. It's designed to be
// called once at startup; components derive their own loggers from it
// with Named and With.
func New(config Config, runID string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	if strings.ToLower(config.Format) == "console" {
		zcfg.Encoding = "console"
		// caller locations are noise next to an interactive prompt
		zcfg.DisableCaller = true
	}
	zcfg.OutputPaths = []string{outputPath(config.OutputFile)}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	zcfg.InitialFields = map[string]any{"service": "sukunadb"}
	if runID != "" {
		zcfg.InitialFields["run_id"] = runID
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// outputPath maps the configured destination to a zap output path. The
// result lines on stdout stay clean unless the caller asks for stdout
// explicitly.
func outputPath(outputFile string) string {
	switch strings.ToLower(outputFile) {
	case "stderr", "":
		return "stderr"
	case "stdout":
		return "stdout"
	default:
		return outputFile
	}
}
