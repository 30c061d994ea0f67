package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultPort       = "8080"
	defaultConfigPath = "elevator.yaml"
	defaultEnvPath    = ".env"
)

// ElevatorConfig is the per-session car configuration.
// It is read from the YAML file and may be overridden by an "init" message.
type ElevatorConfig struct {
	ID                 string  `json:"id" yaml:"id"`
	InitialFloor       int     `json:"initialFloor" yaml:"initialFloor"`
	TravelTime         float64 `json:"travelTime" yaml:"travelTime"` // seconds per floor
	EventBuffer        int     `json:"eventBuffer" yaml:"eventBuffer"`
	CollapseDuplicates bool    `json:"collapseDuplicates" yaml:"collapseDuplicates"`
}

// TravelDuration converts the per-floor travel time to a duration.
func (c ElevatorConfig) TravelDuration() time.Duration {
	return time.Duration(c.TravelTime * float64(time.Second))
}

type AppConfig struct {
	Port     string         `yaml:"port"`
	LogLevel string         `yaml:"logLevel"`
	Elevator ElevatorConfig `yaml:"elevator"`
}

// loadConfig layers the configuration: defaults, then the YAML file, then
// the environment. A .env file, when present, feeds the environment.
func loadConfig(envPath string) (*AppConfig, error) {
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envPath, err)
	}

	cfg := &AppConfig{
		Port:     defaultPort,
		LogLevel: "info",
		Elevator: ElevatorConfig{
			ID:         "car-1",
			TravelTime: 1,
		},
	}

	path := os.Getenv("ELEVATOR_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("No config file, using defaults", "path", path)
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
