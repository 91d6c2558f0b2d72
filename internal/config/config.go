// Package config loads and validates the daemon's configuration: a
// YAML file on disk, merged with CLI flag overrides, validated with
// struct tags before anything downstream trusts it.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Sentinel cross-field errors, named the way ClusterConfig.Validate does
// in the teacher repo: one error per violated invariant, not a generic
// "invalid config" catch-all.
var (
	ErrMissingPromoteCommand = errors.New("config: failover_mode=automatic requires promote_command or service_promote_command")
	ErrMissingFollowCommand  = errors.New("config: failover_mode=automatic requires follow_command")
)

// Config is the daemon's full configuration, loaded from YAML and
// accepted only after struct-tag validation and the cross-field checks
// in Validate.
type Config struct {
	NodeID   int    `yaml:"node_id" validate:"required"`
	Conninfo string `yaml:"conninfo" validate:"required"`

	FailoverMode          string `yaml:"failover_mode" validate:"required,oneof=automatic manual"`
	PromoteCommand        string `yaml:"promote_command"`
	ServicePromoteCommand string `yaml:"service_promote_command"`
	FollowCommand         string `yaml:"follow_command"`

	PromoteDelaySeconds          int  `yaml:"promote_delay"`
	PrimaryResponseTimeoutSeconds int `yaml:"primary_response_timeout"`

	LogLevel          string `yaml:"log_level"`
	LogFile           string `yaml:"log_file"`
	LogStatusInterval int    `yaml:"log_status_interval"`
	MonitoringHistory bool   `yaml:"monitoring_history"`

	EventBusAddr string `yaml:"event_bus_addr"`
}

// PromoteDelay returns PromoteDelaySeconds as a Duration.
func (c *Config) PromoteDelay() time.Duration {
	return time.Duration(c.PromoteDelaySeconds) * time.Second
}

// PrimaryResponseTimeout returns PrimaryResponseTimeoutSeconds as a Duration.
func (c *Config) PrimaryResponseTimeout() time.Duration {
	return time.Duration(c.PrimaryResponseTimeoutSeconds) * time.Second
}

// LogStatusIntervalDuration returns LogStatusInterval as a Duration;
// zero or negative disables the still-alive heartbeat line.
func (c *Config) LogStatusIntervalDuration() time.Duration {
	if c.LogStatusInterval <= 0 {
		return 0
	}
	return time.Duration(c.LogStatusInterval) * time.Second
}

var validate = validator.New()

// Load reads path, unmarshals it as YAML, and validates the result,
// returning the first error encountered from either step.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct-tag validation followed by the cross-field
// checks spec.md §6 requires: automatic failover needs a promote
// command (of either form) and a follow command.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	if c.FailoverMode == "automatic" {
		if c.PromoteCommand == "" && c.ServicePromoteCommand == "" {
			return ErrMissingPromoteCommand
		}
		if c.FollowCommand == "" {
			return ErrMissingFollowCommand
		}
	}

	return nil
}

func formatValidationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	for _, e := range validationErrs {
		switch e.Tag() {
		case "required":
			return fmt.Errorf("config: %s is required", e.Field())
		case "oneof":
			return fmt.Errorf("config: %s must be one of %q", e.Field(), e.Param())
		default:
			return fmt.Errorf("config: %s failed validation (%s)", e.Field(), e.Tag())
		}
	}
	return err
}

// ApplyOverrides merges CLI-flag values onto a loaded Config. Empty
// strings and zero values mean "not set on the command line" and are
// left untouched, matching -L/--log-level's documented behavior of
// overriding the config file only when passed.
func (c *Config) ApplyOverrides(logLevel string, verbose bool, monitoringHistory *bool) {
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if verbose {
		c.LogLevel = "debug"
	}
	if monitoringHistory != nil {
		c.MonitoringHistory = *monitoringHistory
	}
}
