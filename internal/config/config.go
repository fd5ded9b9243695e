package config

import (
	"fmt"
	"os"

	"frigate-occupancy/internal/models"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads the configuration from a file
func LoadConfig(path string) (*models.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg models.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyDefaults(cfg *models.Config) {
	if cfg.MQTT.Broker == "" {
		cfg.MQTT.Broker = "tcp://localhost:1883"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "frigate-occupancy"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "frigate"
	}
	if cfg.MQTT.EventsTopic == "" {
		cfg.MQTT.EventsTopic = cfg.MQTT.TopicPrefix + "/events"
	}
	if cfg.MQTT.HealthCheckInterval == 0 {
		cfg.MQTT.HealthCheckInterval = 30
	}
	if cfg.MQTT.ReconnectDelay == 0 {
		cfg.MQTT.ReconnectDelay = 10
	}
	if cfg.Frigate.URL == "" {
		cfg.Frigate.URL = "http://localhost:5000"
	}
	if cfg.Frigate.PollInterval == 0 {
		cfg.Frigate.PollInterval = 60
	}
	if cfg.Devices.BaseTopic == "" {
		cfg.Devices.BaseTopic = "frigate-occupancy"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "INFO"
	}
}

// applyEnvOverrides lets broker credentials come from the environment (or
// a .env file loaded by main) so they can stay out of the config file.
func applyEnvOverrides(cfg *models.Config) {
	if v := os.Getenv("MQTT_USER"); v != "" {
		cfg.MQTT.User = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("FRIGATE_URL"); v != "" {
		cfg.Frigate.URL = v
	}
}
