package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

const DefaultGreeting = "Hi! Ask me anything, or use /story or /rtr to draft an artifact."

type Config struct {
	BackendURL       string `json:"backend_url"`
	ChatPath         string `json:"chat_path"`
	TimeoutSeconds   int    `json:"timeout_seconds"`
	Greeting         string `json:"greeting"`
	GeneratorCatalog string `json:"generator_catalog"`
}

func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		path = "config.json"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if strings.TrimSpace(cfg.BackendURL) == "" {
		return Config{}, fmt.Errorf("%s: backend_url is required", path)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.BackendURL = strings.TrimSpace(c.BackendURL)
	if strings.TrimSpace(c.ChatPath) == "" {
		c.ChatPath = "/chat"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 120
	}
	if strings.TrimSpace(c.Greeting) == "" {
		c.Greeting = DefaultGreeting
	}
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
