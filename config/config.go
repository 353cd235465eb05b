// Package config collects the runtime configuration of the simulator.
package config

import (
	"github.com/sushant-115/sukunadb/pkg/logger"
	"github.com/sushant-115/sukunadb/pkg/telemetry"
)

// Config is the top-level configuration for the simulator binary.
type Config struct {
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	// Input is the command file to execute; empty means interactive mode.
	Input string `yaml:"input"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Logger: logger.Config{
			Level:      "warn",
			Format:     "console",
			OutputFile: "stderr",
		},
		Telemetry: telemetry.Config{
			Enabled:        false,
			ServiceName:    "sukunadb",
			PrometheusPort: 9464,
		},
	}
}
