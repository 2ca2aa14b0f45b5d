package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/arcadia-invest/scaling-engine/pkg/models"
)

// Config is the engine's complete startup configuration, loaded from a
// single JSON file. Any validation failure is fatal at startup; the
// engine never runs on a partially valid configuration.
type Config struct {
	Services  []ServiceConfig                   `json:"services" validate:"required,min=1,dive"`
	Rules     []*models.ScalingRule             `json:"rules" validate:"required,min=1"`
	Profiles  []*models.FinancialTradingProfile `json:"trading_profiles,omitempty"`
	Collector CollectorConfig                   `json:"collector"`
	Engine    EngineConfig                      `json:"engine"`
	Executor  ExecutorConfig                    `json:"executor"`
	Providers ProviderConfig                    `json:"providers"`
	Server    ServerConfig                      `json:"server"`
	Database  DatabaseConfig                    `json:"database"`
	Logging   LoggingConfig                     `json:"logging"`
}

// ServiceConfig declares one managed service and its hard bounds
type ServiceConfig struct {
	Name         string              `json:"name" validate:"required"`
	Platform     models.PlatformKind `json:"platform" validate:"required"`
	MinInstances int                 `json:"min_instances" validate:"gte=0"`
	MaxInstances int                 `json:"max_instances" validate:"gt=0"`
}

// CollectorConfig tunes the metrics collection loop. MetricsURL points at
// the monitoring aggregator's REST API.
type CollectorConfig struct {
	MetricsURL          string `json:"metrics_url" validate:"required,url"`
	IntervalSeconds     int    `json:"interval_seconds"`
	FetchTimeoutSeconds int    `json:"fetch_timeout_seconds"`
	StaleAfterIntervals int    `json:"stale_after_intervals"`
}

// Interval returns the collection period, defaulting to 30s
func (c CollectorConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// FetchTimeout returns the per-source fetch bound, defaulting to 5s
func (c CollectorConfig) FetchTimeout() time.Duration {
	if c.FetchTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// EngineConfig tunes the decision loop
type EngineConfig struct {
	DecisionIntervalSeconds  int `json:"decision_interval_seconds"`
	ScaleUpCooldownSeconds   int `json:"scale_up_cooldown_seconds"`
	ScaleDownCooldownSeconds int `json:"scale_down_cooldown_seconds"`
	HistorySize              int `json:"history_size"`
}

// DecisionInterval returns the decision period, defaulting to 60s
func (c EngineConfig) DecisionInterval() time.Duration {
	if c.DecisionIntervalSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.DecisionIntervalSeconds) * time.Second
}

// ScaleUpCooldown defaults to 3 minutes
func (c EngineConfig) ScaleUpCooldown() time.Duration {
	if c.ScaleUpCooldownSeconds <= 0 {
		return 3 * time.Minute
	}
	return time.Duration(c.ScaleUpCooldownSeconds) * time.Second
}

// ScaleDownCooldown defaults to 10 minutes
func (c EngineConfig) ScaleDownCooldown() time.Duration {
	if c.ScaleDownCooldownSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.ScaleDownCooldownSeconds) * time.Second
}

// ExecutorConfig tunes scaling execution
type ExecutorConfig struct {
	ProviderTimeoutSeconds int `json:"provider_timeout_seconds"`
	HistorySize            int `json:"history_size"`
}

// ProviderTimeout defaults to 60s
func (c ExecutorConfig) ProviderTimeout() time.Duration {
	if c.ProviderTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.ProviderTimeoutSeconds) * time.Second
}

// ProviderConfig holds the endpoints of the orchestration platforms
type ProviderConfig struct {
	Kubernetes *KubernetesProviderConfig `json:"kubernetes,omitempty"`
	Nomad      *NomadProviderConfig      `json:"nomad,omitempty"`
	Simulated  bool                      `json:"simulated,omitempty"`
}

// KubernetesProviderConfig points at the cluster's scaling gateway
type KubernetesProviderConfig struct {
	BaseURL   string `json:"base_url" validate:"required,url"`
	Namespace string `json:"namespace" validate:"required"`
}

// NomadProviderConfig points at the Nomad agent
type NomadProviderConfig struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	Token   string `json:"token,omitempty"`
}

// ServerConfig configures the operational HTTP API
type ServerConfig struct {
	ListenAddr string `json:"listen_addr"`
}

// Addr returns the listen address, defaulting to :8080
func (c ServerConfig) Addr() string {
	if c.ListenAddr == "" {
		return ":8080"
	}
	return c.ListenAddr
}

// DatabaseConfig configures the decision/execution history store
type DatabaseConfig struct {
	Path string `json:"path"`
}

// DSN returns the SQLite path, defaulting to scaling_engine.db
func (c DatabaseConfig) DSN() string {
	if c.Path == "" {
		return "scaling_engine.db"
	}
	return c.Path
}

// LoggingConfig selects log verbosity
type LoggingConfig struct {
	Level string `json:"level"` // debug, info, warn, error
}

// Load reads and validates the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags plus the cross-field invariants the tag
// language cannot express.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	known := make(map[string]models.PlatformKind, len(c.Services))
	for _, svc := range c.Services {
		if _, dup := known[svc.Name]; dup {
			return fmt.Errorf("service %q declared twice", svc.Name)
		}
		switch svc.Platform {
		case models.PlatformKubernetes, models.PlatformNomad, models.PlatformSimulated:
		default:
			return fmt.Errorf("service %q: unknown platform %q", svc.Name, svc.Platform)
		}
		if svc.MinInstances > svc.MaxInstances {
			return fmt.Errorf("service %q: min_instances %d exceeds max_instances %d",
				svc.Name, svc.MinInstances, svc.MaxInstances)
		}
		known[svc.Name] = svc.Platform
	}

	for _, platform := range known {
		switch platform {
		case models.PlatformKubernetes:
			if c.Providers.Kubernetes == nil {
				return fmt.Errorf("a service uses platform %q but no kubernetes provider is configured", platform)
			}
		case models.PlatformNomad:
			if c.Providers.Nomad == nil {
				return fmt.Errorf("a service uses platform %q but no nomad provider is configured", platform)
			}
		}
	}

	ruleIDs := make(map[string]struct{}, len(c.Rules))
	for _, rule := range c.Rules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
		if _, dup := ruleIDs[rule.ID]; dup {
			return fmt.Errorf("rule %q declared twice", rule.ID)
		}
		ruleIDs[rule.ID] = struct{}{}
		for _, svc := range rule.Services {
			if svc == "*" {
				continue
			}
			if _, ok := known[svc]; !ok {
				return fmt.Errorf("rule %q references unknown service %q", rule.ID, svc)
			}
		}
	}

	for _, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
		if p.ServiceName != "" {
			if _, ok := known[p.ServiceName]; !ok {
				return fmt.Errorf("trading profile references unknown service %q", p.ServiceName)
			}
		}
	}

	return nil
}

// Limits builds the per-service hard bounds map the decision engine clamps
// against.
func (c *Config) Limits() map[string]models.InstanceLimits {
	out := make(map[string]models.InstanceLimits, len(c.Services))
	for _, svc := range c.Services {
		out[svc.Name] = models.InstanceLimits{Min: svc.MinInstances, Max: svc.MaxInstances}
	}
	return out
}

// Platforms maps each service to its orchestration platform
func (c *Config) Platforms() map[string]models.PlatformKind {
	out := make(map[string]models.PlatformKind, len(c.Services))
	for _, svc := range c.Services {
		out[svc.Name] = svc.Platform
	}
	return out
}

// ServiceNames lists the managed services in declaration order
func (c *Config) ServiceNames() []string {
	out := make([]string, 0, len(c.Services))
	for _, svc := range c.Services {
		out = append(out, svc.Name)
	}
	return out
}
