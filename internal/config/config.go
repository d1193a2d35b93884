package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models certline.yml.
type Config struct {
	Scheme struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"scheme"`
	Documents struct {
		Required []string `yaml:"required"`
		Catalog  map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"documents"`
	Compliance struct {
		PassingScore int `yaml:"passing_score"`
	} `yaml:"compliance"`
	Inspection struct {
		AllowReinspection bool `yaml:"allow_reinspection"`
		MaxReinspections  int  `yaml:"max_reinspections"`
	} `yaml:"inspection"`
	Certificate struct {
		Prefix         string `yaml:"prefix"`
		ValidityYears  int    `yaml:"validity_years"`
		NumberAttempts int    `yaml:"number_attempts"`
		SigningSecret  string `yaml:"signing_secret"`
	} `yaml:"certificate"`
	Rejection struct {
		MinReasonLength int `yaml:"min_reason_length"`
	} `yaml:"rejection"`
	Notifications struct {
		Webhooks []WebhookConfig `yaml:"webhooks"`
	} `yaml:"notifications"`
}

// WebhookConfig describes one event delivery target.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run gacp init or provide one", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
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
	if c.Scheme.ID == "" {
		return fmt.Errorf("config.scheme.id is required")
	}
	if len(c.Documents.Required) == 0 {
		return fmt.Errorf("config.documents.required must list at least one document type")
	}
	for _, docType := range c.Documents.Required {
		if docType == "" {
			return fmt.Errorf("config.documents.required contains empty document type")
		}
		if len(c.Documents.Catalog) > 0 {
			if _, ok := c.Documents.Catalog[docType]; !ok {
				return fmt.Errorf("required document type %s not in catalog", docType)
			}
		}
	}
	if c.Compliance.PassingScore < 0 || c.Compliance.PassingScore > 100 {
		return fmt.Errorf("config.compliance.passing_score must be within 0..100")
	}
	if c.Certificate.Prefix == "" {
		return fmt.Errorf("config.certificate.prefix is required")
	}
	if c.Certificate.ValidityYears <= 0 {
		return fmt.Errorf("config.certificate.validity_years must be positive")
	}
	if c.Certificate.NumberAttempts <= 0 {
		return fmt.Errorf("config.certificate.number_attempts must be positive")
	}
	if c.Rejection.MinReasonLength < 1 {
		return fmt.Errorf("config.rejection.min_reason_length must be at least 1")
	}
	for i, hook := range c.Notifications.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "certline.yml")
}

// Default returns the built-in default configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns the default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
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

const defaultTemplate = `scheme:
  id: gacp
  name: Good Agricultural and Collection Practices

documents:
  required: [land_rights, farm_map, water_source_certificate, cultivation_sop]
  catalog:
    land_rights:
      description: "Proof of land ownership or right of use"
    farm_map:
      description: "Farm layout map with plot boundaries"
    water_source_certificate:
      description: "Water source quality certificate"
    cultivation_sop:
      description: "Standard operating procedures for cultivation"
    harvest_sop:
      description: "Standard operating procedures for harvest and post-harvest"
    training_record:
      description: "Personnel GACP training records"

compliance:
  passing_score: 80

inspection:
  allow_reinspection: true
  max_reinspections: 2

certificate:
  prefix: GACP
  validity_years: 3
  number_attempts: 5
  signing_secret: ""

rejection:
  min_reason_length: 5

notifications:
  webhooks: []
`
