package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration, loaded from YAML with environment
// overrides for the deploy-sensitive values.
type Config struct {
	Server struct {
		Port      int    `yaml:"port"`
		StaticDir string `yaml:"static_dir"`
	} `yaml:"server"`

	Room struct {
		GracePeriodSec int    `yaml:"grace_period_sec"`
		AutoReset      *bool  `yaml:"auto_reset"`
		IdentityPolicy string `yaml:"identity_policy"`
	} `yaml:"room"`

	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 3002
	cfg.Server.StaticDir = "./public"
	cfg.Room.GracePeriodSec = 60
	cfg.Room.IdentityPolicy = "explicit"
	return cfg
}

func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Environment overrides
	config.Server.Port = getEnvAsInt("PORT", config.Server.Port)
	config.Room.GracePeriodSec = getEnvAsInt("GRACE_PERIOD_SEC", config.Room.GracePeriodSec)
	config.NATS.URL = getEnv("NATS_URL", config.NATS.URL)

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
