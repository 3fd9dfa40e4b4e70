package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a single file (legacy method)
func LoadConfig(path string) (*Config, error) {
	return LoadConfigDir(filepath.Dir(path))
}

// LoadConfigDir loads all configuration files from a directory
func LoadConfigDir(dir string) (*Config, error) {
	cfg := &Config{}

	// Load alerting.yaml
	if err := loadYAML(filepath.Join(dir, "alerting.yaml"), &cfg.Alerting); err != nil {
		return nil, fmt.Errorf("loading alerting.yaml: %w", err)
	}

	// Load channels.yaml
	if err := loadYAML(filepath.Join(dir, "channels.yaml"), &cfg.Channels); err != nil {
		return nil, fmt.Errorf("loading channels.yaml: %w", err)
	}

	// Load escalation.yaml
	if err := loadYAML(filepath.Join(dir, "escalation.yaml"), &cfg.Escalation); err != nil {
		return nil, fmt.Errorf("loading escalation.yaml: %w", err)
	}

	// Load incidents.yaml (optional; incidents are disabled without it)
	incidentsPath := filepath.Join(dir, "incidents.yaml")
	if _, err := os.Stat(incidentsPath); err == nil {
		if err := loadYAML(incidentsPath, &cfg.Incidents); err != nil {
			return nil, fmt.Errorf("loading incidents.yaml: %w", err)
		}
	}

	ApplyDefaults(cfg)

	// Validate configuration
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadYAML loads a YAML file into a struct
func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}

// ApplyDefaults fills in defaults for unset values
func ApplyDefaults(cfg *Config) {
	if cfg.Alerting.Breaker.FailureThreshold == 0 {
		cfg.Alerting.Breaker.FailureThreshold = 5
	}
	if cfg.Alerting.Breaker.ResetTimeout == 0 {
		cfg.Alerting.Breaker.ResetTimeout = Duration(60 * time.Second)
	}

	for name, ft := range cfg.Alerting.FaultTypes {
		if ft.Recovery != nil {
			if ft.Recovery.MaxRetries < 1 {
				ft.Recovery.MaxRetries = 1
			}
			if ft.Recovery.MaxRetries > 5 {
				ft.Recovery.MaxRetries = 5
			}
			if ft.Recovery.Backoff == 0 {
				ft.Recovery.Backoff = Duration(500 * time.Millisecond)
			}
		}
		cfg.Alerting.FaultTypes[name] = ft
	}

	for name, ch := range cfg.Channels.Channels {
		if ch.RateLimit.Capacity == 0 {
			ch.RateLimit.Capacity = 30
		}
		if ch.RateLimit.Window == 0 {
			ch.RateLimit.Window = Duration(time.Minute)
		}
		if ch.RetryAttempts == 0 {
			ch.RetryAttempts = 3
		}
		if ch.Timeout == 0 {
			ch.Timeout = Duration(10 * time.Second)
		}
		cfg.Channels.Channels[name] = ch
	}

	for sev, budgets := range cfg.Incidents.SLA {
		if budgets.Acknowledge == 0 {
			budgets.Acknowledge = Duration(5 * time.Minute)
		}
		if budgets.Respond == 0 {
			budgets.Respond = Duration(15 * time.Minute)
		}
		if budgets.Resolve == 0 {
			budgets.Resolve = Duration(4 * time.Hour)
		}
		cfg.Incidents.SLA[sev] = budgets
	}
}

// ValidateConfig validates the configuration
func ValidateConfig(cfg *Config) error {
	validSeverities := map[string]bool{"critical": true, "high": true, "medium": true, "low": true}
	validCategories := map[string]bool{"medical": true, "compliance": true, "accessibility": true, "performance": true, "system": true}

	for name, ft := range cfg.Alerting.FaultTypes {
		if !validSeverities[ft.Severity] {
			return fmt.Errorf("fault type %s: unknown severity %q", name, ft.Severity)
		}
		if !validCategories[ft.Category] {
			return fmt.Errorf("fault type %s: unknown category %q", name, ft.Category)
		}
	}

	// Validate channels
	for name, channel := range cfg.Channels.Channels {
		if channel.Type != "webhook" && channel.Type != "log" {
			return fmt.Errorf("channel %s: type must be 'webhook' or 'log'", name)
		}
		if channel.Type == "webhook" && channel.URLEnv == "" {
			return fmt.Errorf("channel %s: url_env is required for webhook channels", name)
		}
		// Note: We don't validate env var exists here as it may be set at runtime
	}

	// Validate routes reference valid channels
	for severity, channels := range cfg.Channels.Routes {
		for _, chName := range channels {
			if _, ok := cfg.Channels.Channels[chName]; !ok {
				return fmt.Errorf("route %s: references unknown channel %s", severity, chName)
			}
		}
	}

	// Validate fallback order references valid channels
	for _, chName := range cfg.Channels.FallbackOrder {
		if _, ok := cfg.Channels.Channels[chName]; !ok {
			return fmt.Errorf("fallback_order: references unknown channel %s", chName)
		}
	}
	if cfg.Channels.OpsChannel != "" {
		if _, ok := cfg.Channels.Channels[cfg.Channels.OpsChannel]; !ok {
			return fmt.Errorf("ops_channel: references unknown channel %s", cfg.Channels.OpsChannel)
		}
	}

	// Escalation deadlines must be positive or the per-level schedule
	// collapses and re-escalation fires back-to-back
	for name, level := range cfg.Escalation.Levels {
		if level.ResponseTime <= 0 {
			return fmt.Errorf("escalation level %s: response_time must be positive", name)
		}
	}

	// Validate escalation chains reference defined levels
	for faultType, chain := range cfg.Escalation.ChainsByType {
		for _, level := range chain {
			if _, ok := cfg.Escalation.Levels[level]; !ok {
				return fmt.Errorf("escalation chain for %s: references unknown level %s", faultType, level)
			}
		}
	}
	for severity, chain := range cfg.Escalation.ChainsBySeverity {
		for _, level := range chain {
			if _, ok := cfg.Escalation.Levels[level]; !ok {
				return fmt.Errorf("escalation chain for severity %s: references unknown level %s", severity, level)
			}
		}
	}

	// Validate roster schedules
	for _, member := range cfg.Escalation.Roster {
		if member.Name == "" {
			return fmt.Errorf("roster: member name is required")
		}
		switch member.Schedule.Type {
		case "", "24x7":
		case "business_hours", "extended_hours":
			if member.Schedule.Start == "" || member.Schedule.End == "" {
				return fmt.Errorf("roster member %s: schedule start and end are required for %s", member.Name, member.Schedule.Type)
			}
		default:
			return fmt.Errorf("roster member %s: schedule type must be '24x7', 'business_hours', or 'extended_hours'", member.Name)
		}
	}

	// Validate playbook references
	for faultType, name := range cfg.Incidents.PlaybookByType {
		if _, ok := cfg.Incidents.Playbooks[name]; !ok {
			return fmt.Errorf("playbook_by_type for %s: references unknown playbook %s", faultType, name)
		}
	}
	if cfg.Incidents.DefaultPlaybook != "" {
		if _, ok := cfg.Incidents.Playbooks[cfg.Incidents.DefaultPlaybook]; !ok {
			return fmt.Errorf("default_playbook: references unknown playbook %s", cfg.Incidents.DefaultPlaybook)
		}
	}

	return nil
}
