package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates all service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Health   HealthConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	engine, err := loadEngineConfig()
	if err != nil {
		return nil, err
	}

	health, err := loadHealthConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Database: DatabaseConfig{Path: getEnvOrDefault("DATABASE_PATH", "./synapsemind.db")},
		Engine:   engine,
		Health:   health,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	if strings.Contains(port, ":") {
		// Accept ":8000" or "127.0.0.1:8000" as-is.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string
}

// EngineConfig tunes the discussion engine.
type EngineConfig struct {
	TurnDelay          time.Duration
	RoundDelay         time.Duration
	DefaultMaxRounds   int
	DefaultTemperature float64
	DefaultMaxTokens   int
}

func loadEngineConfig() (EngineConfig, error) {
	turnDelay, err := parseDurationEnv("ENGINE_TURN_DELAY", time.Second)
	if err != nil {
		return EngineConfig{}, err
	}

	roundDelay, err := parseDurationEnv("ENGINE_ROUND_DELAY", 2*time.Second)
	if err != nil {
		return EngineConfig{}, err
	}

	maxRounds := 10
	if override, err := parseOptionalIntEnv("ENGINE_DEFAULT_MAX_ROUNDS"); err != nil {
		return EngineConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return EngineConfig{}, fmt.Errorf("ENGINE_DEFAULT_MAX_ROUNDS must be positive, got %d", *override)
		}
		maxRounds = *override
	}

	temperature := 0.7
	if override, err := parseOptionalFloatEnv("ENGINE_DEFAULT_TEMPERATURE"); err != nil {
		return EngineConfig{}, err
	} else if override != nil {
		temperature = *override
	}

	maxTokens := 2000
	if override, err := parseOptionalIntEnv("ENGINE_DEFAULT_MAX_TOKENS"); err != nil {
		return EngineConfig{}, err
	} else if override != nil {
		maxTokens = *override
	}

	return EngineConfig{
		TurnDelay:          turnDelay,
		RoundDelay:         roundDelay,
		DefaultMaxRounds:   maxRounds,
		DefaultTemperature: temperature,
		DefaultMaxTokens:   maxTokens,
	}, nil
}

// HealthConfig tunes the background provider health checker.
type HealthConfig struct {
	Enabled  bool
	Interval time.Duration
}

func loadHealthConfig() (HealthConfig, error) {
	enabled, err := parseBoolEnv("HEALTH_CHECK_ENABLED", true)
	if err != nil {
		return HealthConfig{}, err
	}

	interval, err := parseDurationEnv("HEALTH_CHECK_INTERVAL", 5*time.Minute)
	if err != nil {
		return HealthConfig{}, err
	}

	return HealthConfig{Enabled: enabled, Interval: interval}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
