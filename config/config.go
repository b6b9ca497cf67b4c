// Package config loads the tool configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration.
type Config struct {
	Version          string `yaml:"version"`
	ADTHostURL       string `yaml:"adt_host_url"`
	BlobContainerURL string `yaml:"blob_container_url,omitempty"`
	TenantID         string `yaml:"tenant_id"`
	ObjectID         string `yaml:"object_id"`

	// Forwarding origins, e.g. "https://localhost:4280/proxy/adt".
	// When set they replace the service host on every call.
	ADTProxyPath  string `yaml:"adt_proxy_path,omitempty"`
	BlobProxyPath string `yaml:"blob_proxy_path,omitempty"`
	StorageDir    string `yaml:"storage_dir,omitempty"`
	Cache         Cache  `yaml:"cache,omitempty"`
	OTELEndpoint  string `yaml:"otel_endpoint,omitempty"`
}

// Cache holds the per-entity max-ages.
type Cache struct {
	TwinMaxAge     time.Duration `yaml:"twin_max_age"`
	ModelMaxAge    time.Duration `yaml:"model_max_age"`
	InstanceMaxAge time.Duration `yaml:"instance_max_age"`
}

// LoadConfig loads configuration from file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnv lets environment variables override file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("TWINSCAPE_ADT_HOST_URL"); v != "" {
		c.ADTHostURL = v
	}
	if v := os.Getenv("TWINSCAPE_BLOB_CONTAINER_URL"); v != "" {
		c.BlobContainerURL = v
	}
	if v := os.Getenv("TWINSCAPE_TENANT_ID"); v != "" {
		c.TenantID = v
	}
	if v := os.Getenv("TWINSCAPE_OBJECT_ID"); v != "" {
		c.ObjectID = v
	}
	if v := os.Getenv("TWINSCAPE_STORAGE_DIR"); v != "" {
		c.StorageDir = v
	}
	if v := os.Getenv("TWINSCAPE_OTEL_ENDPOINT"); v != "" {
		c.OTELEndpoint = v
	}
}

// applyDefaults fills the optional fields. The proxy origins stay
// empty unless configured; adapters talk to the service hosts directly.
func (c *Config) applyDefaults() {
	if c.StorageDir == "" {
		c.StorageDir = ".twinscape"
	}
	if c.Cache.TwinMaxAge == 0 {
		c.Cache.TwinMaxAge = 9 * time.Second
	}
	if c.Cache.ModelMaxAge == 0 {
		c.Cache.ModelMaxAge = 30 * time.Minute
	}
	if c.Cache.InstanceMaxAge == 0 {
		c.Cache.InstanceMaxAge = 30 * time.Minute
	}
}

// Validate ensures config has required fields.
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if c.ADTHostURL == "" {
		return fmt.Errorf("adt_host_url is required")
	}
	if c.TenantID == "" {
		return fmt.Errorf("tenant_id is required")
	}
	return nil
}
