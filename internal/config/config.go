package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models kitchenflow.yml.
type Config struct {
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Storage struct {
		ImagesBucket   string `yaml:"images_bucket"`
		ProjectsBucket string `yaml:"projects_bucket"`
		PublicBaseURL  string `yaml:"public_base_url"`
	} `yaml:"storage"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig describes one event-feed subscriber. Events empty means all
// event types.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "kitchenflow.yml")
}

// Load reads config from the workspace, falling back to defaults when the
// file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.ImagesBucket) == "" {
		return fmt.Errorf("config.storage.images_bucket is required")
	}
	if strings.TrimSpace(c.Storage.ProjectsBucket) == "" {
		return fmt.Errorf("config.storage.projects_bucket is required")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		for _, evt := range hook.Events {
			if evt == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event type", i)
			}
		}
	}
	return nil
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	cfg.Auth.AllowLegacyActorHeader = true
	cfg.Storage.ImagesBucket = "kitchen-images"
	cfg.Storage.ProjectsBucket = "kitchen-projects"
	return &cfg
}

// GenerateDefault returns default config YAML for kf config init.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `auth:
  # Secret used to sign and verify HS256 bearer tokens. Required for serve.
  jwt_secret: ""
  # Accept X-Actor-Id without a token. Local development only.
  allow_legacy_actor_header: true

storage:
  images_bucket: kitchen-images
  projects_bucket: kitchen-projects
  public_base_url: ""

# Event-feed subscribers. Each receives JSON batches of audit events and is
# expected to refetch affected queries, not to treat the feed as truth.
webhooks: []
#  - url: https://example.com/hooks/kitchenflow
#    enabled: true
#    events: [phase.assigned, phase.status.changed]
`
