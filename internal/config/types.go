package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so config values can be written in Go
// duration syntax ("30s", "5m"). Bare numbers are taken as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the complete PulseGuard configuration
type Config struct {
	Alerting   AlertingConfig   `yaml:"alerting"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Escalation EscalationConfig `yaml:"escalation"`
	Incidents  IncidentConfig   `yaml:"incidents"`
}

// AlertingConfig defines fault classification and recovery behavior
type AlertingConfig struct {
	FaultTypes map[string]FaultTypeConfig `yaml:"fault_types"`
	Breaker    BreakerConfig              `yaml:"circuit_breaker"`
}

// FaultTypeConfig classifies a fault type and optionally binds a recovery policy
type FaultTypeConfig struct {
	Severity string          `yaml:"severity"` // "critical", "high", "medium", "low"
	Category string          `yaml:"category"` // "medical", "compliance", "accessibility", "performance", "system"
	Recovery *RecoveryPolicy `yaml:"recovery,omitempty"`
}

// RecoveryPolicy bounds automatic recovery for a fault type
type RecoveryPolicy struct {
	Strategy   string   `yaml:"strategy"`
	MaxRetries int      `yaml:"max_retries"`
	Backoff    Duration `yaml:"backoff"`
}

// BreakerConfig defines per-category circuit breaker behavior
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	ResetTimeout     Duration `yaml:"reset_timeout"`
}

// ChannelsConfig defines notification channels and routing between them
type ChannelsConfig struct {
	Channels      map[string]ChannelConfig `yaml:"channels"`
	Routes        map[string][]string      `yaml:"routes"` // severity (or "default") -> channels
	FallbackOrder []string                 `yaml:"fallback_order"`
	OpsChannel    string                   `yaml:"ops_channel"`
}

// ChannelConfig defines a notification channel
type ChannelConfig struct {
	Type           string          `yaml:"type"` // "webhook" or "log"
	URLEnv         string          `yaml:"url_env,omitempty"`
	Enabled        bool            `yaml:"enabled"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	RetryAttempts  int             `yaml:"retry_attempts"`
	Timeout        Duration        `yaml:"timeout"`
	PriorityFilter []string        `yaml:"priority_filter,omitempty"`
}

// RateLimitConfig defines a sliding-window admission limit
type RateLimitConfig struct {
	Capacity int      `yaml:"capacity"`
	Window   Duration `yaml:"window"`
}

// EscalationConfig defines escalation levels, chains, and the team roster
type EscalationConfig struct {
	Levels           map[string]LevelConfig `yaml:"levels"`
	ChainsByType     map[string][]string    `yaml:"chains_by_type,omitempty"`
	ChainsBySeverity map[string][]string    `yaml:"chains_by_severity"`
	Roster           []RosterMember         `yaml:"roster"`
}

// LevelConfig defines a single escalation level
type LevelConfig struct {
	TeamRole     string   `yaml:"team_role"`
	ResponseTime Duration `yaml:"response_time"`
}

// RosterMember defines a person on the response roster
type RosterMember struct {
	Name     string         `yaml:"name"`
	Roles    []string       `yaml:"roles"`
	Contact  string         `yaml:"contact,omitempty"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// ScheduleConfig defines a member's availability window
type ScheduleConfig struct {
	Type  string `yaml:"type"` // "24x7", "business_hours", "extended_hours"
	Start string `yaml:"start,omitempty"`
	End   string `yaml:"end,omitempty"`
}

// IncidentConfig defines incident opening rules, playbooks, and SLA budgets
type IncidentConfig struct {
	SeverityMap     map[string]string         `yaml:"severity_map"`    // alert severity -> SEV level
	TypeOverrides   map[string]string         `yaml:"type_overrides"`  // fault type -> SEV level
	Stakeholders    map[string][]string       `yaml:"stakeholders"`    // SEV level -> mandated roles
	Specialists     map[string][]string       `yaml:"specialists"`     // category -> specialist roles
	SLA             map[string]SLAConfig      `yaml:"sla"`             // SEV level -> budgets
	Playbooks       map[string]PlaybookConfig `yaml:"playbooks"`       // name -> steps
	PlaybookByType  map[string]string         `yaml:"playbook_by_type"`
	DefaultPlaybook string                    `yaml:"default_playbook"`
}

// SLAConfig defines per-severity response time budgets
type SLAConfig struct {
	Acknowledge Duration `yaml:"acknowledge"`
	Respond     Duration `yaml:"respond"`
	Resolve     Duration `yaml:"resolve"`
}

// PlaybookConfig defines an ordered sequence of remediation steps
type PlaybookConfig struct {
	Steps []StepConfig `yaml:"steps"`
}

// StepConfig defines a single playbook step
type StepConfig struct {
	Name      string `yaml:"name"`
	Action    string `yaml:"action"`
	Automatic bool   `yaml:"automatic"`
}
