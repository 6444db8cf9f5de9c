package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and initial parsing of a DeviceConfig from a file.
type Loader struct {
	filePath string
}

// NewLoader creates a new configuration loader for the given file path.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads the configuration file, unmarshals it and performs structural
// validation. Defaulting is handled separately by SetDefaults.
func (l *Loader) Load() (*DeviceConfig, error) {
	if l.filePath == "" {
		return nil, fmt.Errorf("configuration file path is empty")
	}
	content, err := os.ReadFile(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", l.filePath, err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("configuration file '%s' is empty", l.filePath)
	}
	return Parse(content, l.filePath)
}

// Parse unmarshals and validates the structure of a device document. source
// names the document in error messages.
func Parse(content []byte, source string) (*DeviceConfig, error) {
	var cfg DeviceConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML from '%s': %w", source, err)
	}

	if cfg.APIVersion == "" {
		return nil, fmt.Errorf("config validation failed: apiVersion is a required field in '%s'", source)
	}
	if cfg.Kind != KindDevice {
		return nil, fmt.Errorf("config validation failed: kind must be '%s' in '%s', got '%s'", KindDevice, source, cfg.Kind)
	}
	if cfg.Metadata.Name == "" {
		return nil, fmt.Errorf("config validation failed: metadata.name is a required field in '%s'", source)
	}
	return &cfg, nil
}
