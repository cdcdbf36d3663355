package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all engine service configuration.
type Config struct {
	Service   ServiceConfig
	Engine    EngineConfig
	Redis     RedisConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-wide settings.
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// EngineConfig holds scheduler/event-bus tuning knobs.
type EngineConfig struct {
	MaxConcurrentNodes int
	KeepAliveInterval  time.Duration
	TerminalFlushDelay time.Duration
	WorkflowTimeout    time.Duration
	MaxHandlerAttempts int
	RetryBaseDelay     time.Duration
	OpenAIAPIKey       string
}

// RedisConfig holds the optional connectors/redisbridge connection.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// TelemetryConfig holds observability toggles.
type TelemetryConfig struct {
	EnablePprof bool
	PprofPort   int
}

// Load loads configuration from environment variables, the same
// getEnv*-with-defaults shape the rest of the pack uses.
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Engine: EngineConfig{
			MaxConcurrentNodes: getEnvInt("MAX_CONCURRENT_NODES", 8),
			KeepAliveInterval:  getEnvDuration("KEEP_ALIVE_INTERVAL_MS", 30*time.Second),
			TerminalFlushDelay: getEnvDuration("TERMINAL_FLUSH_MS", 500*time.Millisecond),
			WorkflowTimeout:    getEnvDuration("WORKFLOW_TIMEOUT_MS", 0),
			MaxHandlerAttempts: getEnvInt("MAX_HANDLER_ATTEMPTS", 3),
			RetryBaseDelay:     getEnvDuration("RETRY_BASE_DELAY_MS", 250*time.Millisecond),
			OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Telemetry: TelemetryConfig{
			EnablePprof: getEnvBool("ENABLE_PPROF", false),
			PprofPort:   getEnvInt("PPROF_PORT", 6060),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime errors much later.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}
	if c.Engine.MaxConcurrentNodes < 1 {
		return fmt.Errorf("max_concurrent_nodes must be >= 1")
	}
	if c.Engine.MaxHandlerAttempts < 1 {
		return fmt.Errorf("max_handler_attempts must be >= 1")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration treats a bare numeric value as milliseconds (the env var
// names carry an _MS suffix for that reason) and otherwise parses it as a
// Go duration string ("30s", "1m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}
