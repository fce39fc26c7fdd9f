package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultConfigDir returns the default config directory (~/.tailwag).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".tailwag"), nil
}

// DefaultConfigPath returns the default config file path (~/.tailwag/config.yml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// AgentConfig holds the agent's configuration.
type AgentConfig struct {
	HubURL          string   `yaml:"hub_url,omitempty"`
	TenantID        string   `yaml:"tenant_id,omitempty"`
	PublicKeys      []string `yaml:"public_keys,omitempty"`
	RecheckSchedule string   `yaml:"recheck_schedule,omitempty"`
	DataDir         string   `yaml:"data_dir,omitempty"`
}

// Validate checks that the configuration has required fields for operation.
func (c *AgentConfig) Validate() error {
	if c.HubURL == "" {
		return errors.New("hub_url is required")
	}
	if c.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if len(c.PublicKeys) == 0 {
		return errors.New("at least one public key is required")
	}
	return nil
}

// IsRegistered returns true if the agent has been bound to a tenant.
func (c *AgentConfig) IsRegistered() bool {
	return c.HubURL != "" && c.TenantID != ""
}

// Load reads the configuration from the given path.
// If the file does not exist, an empty config is returned.
func Load(path string) (*AgentConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &AgentConfig{}, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg AgentConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return &cfg, nil
}

// LoadDefault loads the configuration from the default path.
func LoadDefault() (*AgentConfig, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Save writes the configuration to the given path, creating directories as needed.
func (c *AgentConfig) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Restricted permissions: the config names the bound tenant.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// SaveDefault writes the configuration to the default path.
func (c *AgentConfig) SaveDefault() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.Save(path)
}
