package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config contains tools-service client configuration
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig controls where the service binary is found and which server
// versions the client will accept.
type ServiceConfig struct {
	InstallDir string `yaml:"install_dir"`
	// DownloadURL is consulted when no binary exists under InstallDir.
	DownloadURL string `yaml:"download_url,omitempty"`
	// Checksum is the expected SHA-256 of the downloaded artifact.
	Checksum string `yaml:"checksum,omitempty"`
	// CompatibleVersion overrides the built-in version prefix the handshake
	// matches against.
	CompatibleVersion string `yaml:"compatible_version,omitempty"`
}

// LoggingConfig contains the logging flags forwarded to the service
type LoggingConfig struct {
	// Verbose adds --enable-logging to the service launch arguments.
	Verbose bool `yaml:"verbose"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(config *Config) error {
	if config.Service.InstallDir == "" {
		return fmt.Errorf("service install_dir is required")
	}
	if config.Service.DownloadURL != "" && config.Service.Checksum == "" {
		return fmt.Errorf("checksum is required when download_url is set")
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sqlsvc", "config.yaml")
}

// GetDefaultConfig returns the default client configuration
func GetDefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Service: ServiceConfig{
			InstallDir: filepath.Join(home, ".sqlsvc", "service"),
		},
		Logging: LoggingConfig{
			Verbose: false,
		},
	}
}

// LoadOrDefault loads the config at path, falling back to the default
// configuration when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		path = GetDefaultConfigPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return GetDefaultConfig(), nil
	}
	return LoadConfig(path)
}
