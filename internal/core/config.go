package core

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EngineConfig holds runtime configuration for the worker engine.
type EngineConfig struct {
	MemoryLimitMB   int           `envconfig:"WORKER_MEMORY_LIMIT_MB" default:"128"`    // per-unit heap limit, 0 = unlimited
	MaxScriptSizeKB int           `envconfig:"WORKER_MAX_SCRIPT_SIZE_KB" default:"1024"` // largest loadable script
	TerminateGrace  time.Duration `envconfig:"WORKER_TERMINATE_GRACE" default:"2s"`      // in-flight handler budget after Terminate
	ScriptRoot      string        `envconfig:"WORKER_SCRIPT_ROOT" default:"."`           // base directory for file designators
	LogLevel        string        `envconfig:"WORKER_LOG_LEVEL" default:"info"`
	LogDevelopment  bool          `envconfig:"WORKER_LOG_DEV" default:"false"`
}

// DefaultConfig returns the configuration used when nothing is set in the
// environment.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		MemoryLimitMB:   128,
		MaxScriptSizeKB: 1024,
		TerminateGrace:  2 * time.Second,
		ScriptRoot:      ".",
		LogLevel:        "info",
	}
}

// LoadConfig reads EngineConfig from WORKER_* environment variables.
func LoadConfig() (EngineConfig, error) {
	var cfg EngineConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("loading worker config: %w", err)
	}
	return cfg, nil
}
