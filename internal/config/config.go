// Package config loads and validates redraft.yml.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/redraft-dev/redraft/internal/router"
)

// Config represents the top-level redraft.yml configuration.
type Config struct {
	Version    string            `yaml:"version"`
	Store      StoreConfig       `yaml:"store"`
	Workflow   *WorkflowConfig   `yaml:"workflow,omitempty"`
	Generation *GenerationConfig `yaml:"generation,omitempty"`
}

// StoreConfig selects and parameterizes the checkpoint backend.
type StoreConfig struct {
	Backend    string `yaml:"backend"`               // "redis" or "sqlite"
	RedisURL   string `yaml:"redis_url,omitempty"`   // Required for the redis backend
	Namespace  string `yaml:"namespace,omitempty"`   // Redis key namespace (default: "default")
	SQLitePath string `yaml:"sqlite_path,omitempty"` // Required for the sqlite backend
}

// WorkflowConfig overrides routing thresholds and caps.
type WorkflowConfig struct {
	SafetyThreshold     *float64 `yaml:"safety_threshold,omitempty"`  // Default: 0.85
	EmpathyThreshold    *float64 `yaml:"empathy_threshold,omitempty"` // Default: 0.70
	MaxIterations       *int     `yaml:"max_iterations,omitempty"`    // Default: 20
	UniformIterationCap bool     `yaml:"uniform_iteration_cap"`       // Apply the cap to every revision re-entry
}

// GenerationConfig selects the drafting backend.
type GenerationConfig struct {
	Backend string `yaml:"backend,omitempty"` // Default: "template"
}

// Store backend names.
const (
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Validate performs strict validation on the configuration and applies
// defaults for omitted workflow values.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	switch c.Store.Backend {
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis backend")
		}
		if c.Store.Namespace == "" {
			c.Store.Namespace = "default"
		}
	case BackendSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite backend")
		}
	case "":
		return fmt.Errorf("store.backend is required (valid: %s, %s)", BackendRedis, BackendSQLite)
	default:
		return fmt.Errorf("unknown store backend: %s (valid: %s, %s)", c.Store.Backend, BackendRedis, BackendSQLite)
	}

	if c.Workflow == nil {
		c.Workflow = &WorkflowConfig{}
	}
	if c.Workflow.SafetyThreshold == nil {
		v := router.DefaultSafetyThreshold
		c.Workflow.SafetyThreshold = &v
	}
	if c.Workflow.EmpathyThreshold == nil {
		v := router.DefaultEmpathyThreshold
		c.Workflow.EmpathyThreshold = &v
	}
	if c.Workflow.MaxIterations == nil {
		v := router.DefaultMaxIterations
		c.Workflow.MaxIterations = &v
	}

	if c.Generation == nil {
		c.Generation = &GenerationConfig{}
	}
	if c.Generation.Backend == "" {
		c.Generation.Backend = "template"
	}

	if err := c.RouterConfig().Validate(); err != nil {
		return fmt.Errorf("invalid workflow configuration: %w", err)
	}

	return nil
}

// RouterConfig maps the workflow section onto routing thresholds.
func (c *Config) RouterConfig() router.Config {
	return router.Config{
		SafetyThreshold:     *c.Workflow.SafetyThreshold,
		EmpathyThreshold:    *c.Workflow.EmpathyThreshold,
		MaxIterations:       *c.Workflow.MaxIterations,
		UniformIterationCap: c.Workflow.UniformIterationCap,
	}
}

// Load reads and validates redraft.yml from the specified path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
