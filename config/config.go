// Package config loads and patches the ambient configuration recognized by
// the core (workflow, gates, executor, event bus options) and the
// surrounding collaborators (webhook targets, telemetry toggles).
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var structValidator = validator.New()

// Config is the root configuration document. JSON tags mirror the
// recognized option names in the core's external-interfaces contract.
type Config struct {
	Workflow  WorkflowConfig  `mapstructure:"workflow" json:"workflow"`
	Gates     GatesConfig     `mapstructure:"gates" json:"gates"`
	Executor  ExecutorConfig  `mapstructure:"executor" json:"executor"`
	EventBus  EventBusConfig  `mapstructure:"eventBus" json:"eventBus"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
	Webhooks  []string        `mapstructure:"webhooks" json:"webhooks,omitempty"`
}

type WorkflowConfig struct {
	Enabled                bool `mapstructure:"enabled" json:"enabled"`
	AutoCleanupEnabled     bool `mapstructure:"autoCleanupEnabled" json:"autoCleanupEnabled"`
	CompletedRetentionDays int  `mapstructure:"completedRetentionDays" json:"completedRetentionDays"`
	MaxCompletedTasks      int  `mapstructure:"maxCompletedTasks" json:"maxCompletedTasks"`
	GatesEnabled           bool `mapstructure:"gatesEnabled" json:"gatesEnabled"`
}

type GatesConfig struct {
	RequireGuard           bool  `mapstructure:"requireGuard" json:"requireGuard"`
	RequireTest            bool  `mapstructure:"requireTest" json:"requireTest"`
	FreshnessWindowMs      int64 `mapstructure:"freshnessWindowMs" json:"freshnessWindowMs" validate:"gte=0"`
	RequireGuardBeforeTest bool  `mapstructure:"requireGuardBeforeTest" json:"requireGuardBeforeTest"`
	BlockOnFail            bool  `mapstructure:"blockOnFail" json:"blockOnFail"`
}

type ExecutorConfig struct {
	ConcurrencyLimit int  `mapstructure:"concurrencyLimit" json:"concurrencyLimit" validate:"gte=0"`
	BypassGates      bool `mapstructure:"bypassGates" json:"bypassGates"`
}

type EventBusConfig struct {
	MaxHistorySize int `mapstructure:"maxHistorySize" json:"maxHistorySize"`
}

type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metricsEnabled" json:"metricsEnabled"`
	TracingEnabled bool   `mapstructure:"tracingEnabled" json:"tracingEnabled"`
	OTLPEndpoint   string `mapstructure:"otlpEndpoint" json:"otlpEndpoint,omitempty"`
}

// Default returns the configuration the core falls back to when no file or
// environment overrides are present.
func Default() Config {
	return Config{
		Workflow: WorkflowConfig{
			Enabled:                true,
			AutoCleanupEnabled:     true,
			CompletedRetentionDays: 7,
			MaxCompletedTasks:      200,
			GatesEnabled:           true,
		},
		Gates: GatesConfig{
			RequireGuard:           true,
			RequireTest:            true,
			FreshnessWindowMs:      10 * 60 * 1000,
			RequireGuardBeforeTest: true,
			BlockOnFail:            true,
		},
		Executor: ExecutorConfig{ConcurrencyLimit: 1, BypassGates: false},
		EventBus: EventBusConfig{MaxHistorySize: 1000},
	}
}

// Load reads configuration from configPath (if non-empty) and the
// CCGUARD_-prefixed environment, layered over Default(). A CCGUARD_
// variable overrides only a key that the config file also sets: no keys
// are registered with viper beforehand, so with no config file, or for a
// key the file omits, the environment is not read.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("ccguard")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshaling: %w", err)
	}
	if err := structValidator.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("config: invalid: %w", err)
	}
	return cfg, nil
}
