package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration. Every field has a usable default so
// the file is optional; CLI flags override whatever the file set.
type Config struct {
	Listen      string `yaml:"listen"`
	InputDevice string `yaml:"input_device"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:      ":8080",
		InputDevice: "/dev/input/mice",
	}
}

// LoadConfig reads a YAML config file over the defaults. A missing path is
// fine; a present but unparsable file is an error worth failing on.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
