package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"stageflow/internal/stages"
)

// Config models stageflow.yml.
type Config struct {
	Database struct {
		Driver string `yaml:"driver"`
		Path   string `yaml:"path"`
		URL    string `yaml:"url"`
	} `yaml:"database"`
	Workflow struct {
		Stages []stages.Def `yaml:"stages"`
	} `yaml:"workflow"`
	Notifications struct {
		Priority     string `yaml:"priority"`
		LinkTemplate string `yaml:"link_template"`
	} `yaml:"notifications"`
	Outbox   OutboxConfig `yaml:"outbox"`
	RabbitMQ struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"rabbitmq"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	RBAC struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
}

// OutboxConfig tunes the relay that publishes committed transition events.
type OutboxConfig struct {
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
	MaxRetries    int           `yaml:"max_retries"`
	BackoffBase   time.Duration `yaml:"backoff_base"`
	BackoffMax    time.Duration `yaml:"backoff_max"`
	RetentionDays int           `yaml:"retention_days"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sf config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Database.URL) == "" {
			return fmt.Errorf("config.database.url is required for postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if _, err := stages.NewCatalog(c.Workflow.Stages); err != nil {
		return fmt.Errorf("config.workflow.stages: %w", err)
	}
	switch c.Notifications.Priority {
	case "low", "medium", "high", "urgent":
	default:
		return fmt.Errorf("config.notifications.priority must be low, medium, high or urgent")
	}
	if !strings.Contains(c.Notifications.LinkTemplate, "{project_id}") {
		return fmt.Errorf("config.notifications.link_template must contain {project_id}")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("config.outbox.batch_size must be positive")
	}
	if c.Outbox.PollInterval <= 0 {
		return fmt.Errorf("config.outbox.poll_interval must be positive")
	}
	if len(c.RBAC.Roles) > 0 {
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	return nil
}

// Catalog builds the stage catalog. Validate must have passed.
func (c *Config) Catalog() stages.Catalog {
	cat, err := stages.NewCatalog(c.Workflow.Stages)
	if err != nil {
		return stages.Default()
	}
	return cat
}

// ProjectLink renders the notification link for a project.
func (c *Config) ProjectLink(projectID string) string {
	return strings.ReplaceAll(c.Notifications.LinkTemplate, "{project_id}", projectID)
}

// RolePermissions flattens rbac.roles into role → permissions.
func (c *Config) RolePermissions() map[string][]string {
	out := make(map[string][]string, len(c.RBAC.Roles))
	for id, role := range c.RBAC.Roles {
		out[id] = append([]string(nil), role.Permissions...)
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "stageflow.yml")
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(err)
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing sections
// take their values from the default template.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		return nil, fmt.Errorf("default config: %w", err)
	}
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if len(override.Workflow.Stages) > 0 {
		cfg.Workflow.Stages = nil
	}
	if len(override.RBAC.Roles) > 0 {
		cfg.RBAC.Roles = nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `database:
  driver: sqlite
  path: .stageflow/stageflow.db

workflow:
  stages:
    - {code: planning, name: Planning}
    - {code: ui_ux, name: UI/UX Design}
    - {code: development, name: Development}
    - {code: testing, name: Testing}
    - {code: deployment, name: Deployment}
    - {code: completed, name: Completed}

notifications:
  priority: high
  link_template: /projects/{project_id}

outbox:
  poll_interval: 500ms
  batch_size: 100
  max_retries: 5
  backoff_base: 1s
  backoff_max: 1m
  retention_days: 7

rabbitmq:
  url: ""
  exchange: stageflow.events

log:
  level: info
  format: text

rbac:
  roles:
    admin:
      description: "Full access"
      permissions: [project.create, project.read, project.delete, stage.read, stage.transition, stage.history]
    project_manager:
      description: "Drives delivery stages"
      permissions: [project.create, project.read, stage.read, stage.transition, stage.history]
    developer:
      description: "Works tasks, reads lifecycle"
      permissions: [project.read, stage.read, stage.history]
    client:
      description: "Read-only view of progress"
      permissions: [project.read, stage.history]
`
