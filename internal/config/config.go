// Package config loads simulator settings from a JSON file with viper,
// layering defaults under whatever the file provides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/orbitalfoundry/debris-simulator/core"
)

// FileName is the config file viper looks for inside the config dir.
const FileName = "simulator.cfg.json"

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logFormat", "text")

	viper.SetDefault("engine.capacity", 10000)
	viper.SetDefault("engine.backend", "sequential")
	viper.SetDefault("engine.workers", 0)
	viper.SetDefault("engine.timeMultiplier", 1)
	viper.SetDefault("engine.seed", 0)
	viper.SetDefault("engine.subStepSeconds", 1.0)
	viper.SetDefault("engine.maxTickSeconds", 3600.0)
	viper.SetDefault("engine.dragCoefficient", 1e-4)
	viper.SetDefault("engine.fragmentDensityFactor", 10.0)
	viper.SetDefault("engine.collisionCellSizeKm", 100.0)
	viper.SetDefault("engine.safetyMarginKm", 25.0)
	viper.SetDefault("engine.maxBreakupEventsPerTick", 64)

	viper.SetDefault("server.listenAddr", ":8086")
	viper.SetDefault("server.tickIntervalMs", 50)

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	// Environment overrides: SIM_ENGINE_CAPACITY beats engine.capacity.
	viper.SetEnvPrefix("SIM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetFloat returns a float64 config value.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// EngineConfig assembles a core.Config from the loaded settings,
// starting from the engine defaults so untouched physics parameters
// keep their documented values.
func EngineConfig() (core.Config, error) {
	cfg := core.DefaultConfig()

	backend, err := core.ParseBackendKind(viper.GetString("engine.backend"))
	if err != nil {
		return core.Config{}, err
	}
	cfg.Backend = backend
	cfg.Capacity = viper.GetInt("engine.capacity")
	cfg.Workers = viper.GetInt("engine.workers")
	cfg.TimeMultiplier = viper.GetFloat64("engine.timeMultiplier")
	cfg.Seed = viper.GetInt64("engine.seed")
	cfg.Physics.SubStepSeconds = viper.GetFloat64("engine.subStepSeconds")
	cfg.Physics.MaxTickSeconds = viper.GetFloat64("engine.maxTickSeconds")
	cfg.Physics.DragCoefficient = viper.GetFloat64("engine.dragCoefficient")
	cfg.Breakup.FragmentDensityFactor = viper.GetFloat64("engine.fragmentDensityFactor")
	cfg.CollisionCellSizeKm = viper.GetFloat64("engine.collisionCellSizeKm")
	cfg.SafetyMarginKm = viper.GetFloat64("engine.safetyMarginKm")
	cfg.MaxBreakupEventsPerTick = viper.GetInt("engine.maxBreakupEventsPerTick")
	return cfg, nil
}
