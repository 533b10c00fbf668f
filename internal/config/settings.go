package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mineguard/cheatercheck/pkg/afk"
	"github.com/mineguard/cheatercheck/pkg/check"
	"github.com/mineguard/cheatercheck/pkg/freeze"
)

// Settings is the file-based gameplay configuration. Every section has
// working defaults so a missing section, or a missing file in dev, still
// yields a runnable service.
type Settings struct {
	Check  check.Config  `yaml:"check"`
	Freeze freeze.Config `yaml:"freeze"`
	Afk    afk.Config    `yaml:"afk"`

	// MessagesPath points to a message catalog overriding the built-in
	// texts; empty keeps the defaults.
	MessagesPath string `yaml:"messages_file"`
	// CheatsPath points to the cheat type definitions; empty keeps the
	// built-in set.
	CheatsPath string `yaml:"cheats_file"`
}

// DefaultSettings returns the full default configuration.
func DefaultSettings() *Settings {
	return &Settings{
		Check:  check.DefaultConfig(),
		Freeze: freeze.DefaultConfig(),
		Afk:    afk.DefaultConfig(),
	}
}

// LoadSettings loads gameplay settings from a YAML file. Supports
// environment variable expansion in the form ${VAR_NAME} or
// ${VAR_NAME:default}. A missing file returns the defaults.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	settings := DefaultSettings()
	if err := yaml.Unmarshal([]byte(expanded), settings); err != nil {
		return nil, fmt.Errorf("failed to parse settings YAML: %w", err)
	}

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

// Validate checks the settings for values the managers cannot work with.
func (s *Settings) Validate() error {
	if s.Check.TimeoutSeconds <= 0 {
		return fmt.Errorf("check.timeout_seconds must be positive, got %d", s.Check.TimeoutSeconds)
	}
	if s.Check.ReminderIntervalSeconds < 0 {
		return fmt.Errorf("check.reminder_interval_seconds must not be negative")
	}
	if s.Check.PostCheckRestrictionSeconds < 0 {
		return fmt.Errorf("check.post_check_restriction_seconds must not be negative")
	}
	if s.Check.Teleport.Enabled && s.Check.Teleport.Location.World == "" {
		return fmt.Errorf("check.teleport.location.world is required when teleporting is enabled")
	}
	if s.Afk.ThresholdSeconds <= 0 {
		return fmt.Errorf("afk.threshold_seconds must be positive, got %d", s.Afk.ThresholdSeconds)
	}
	if s.Freeze.GroundSnap.MaxDepth < 0 {
		return fmt.Errorf("freeze.ground_snap.max_depth must not be negative")
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or
// ${VAR:default}.
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		parts := strings.SplitN(key, ":", 2)
		varName := parts[0]
		defaultValue := ""
		if len(parts) == 2 {
			defaultValue = parts[1]
		}

		value := os.Getenv(varName)
		if value == "" {
			return defaultValue
		}
		return value
	})
}
