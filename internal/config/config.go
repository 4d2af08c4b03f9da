package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Database DatabaseConfig
	Docker   DockerConfig
	Agent    AgentDefaults
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// AuthConfig holds JWT authentication settings. An empty secret disables
// authentication (local development only).
type AuthConfig struct {
	JWTSecret string //nolint:gosec // G117: JWT signing secret config
	TokenTTL  time.Duration
}

// RedisConfig holds the optional event-mirror pub/sub settings. An empty
// Addr disables the mirror.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// DatabaseConfig holds the optional PostgreSQL event-log settings. An empty
// Host disables persistence.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// DockerConfig holds sandbox container runtime settings.
type DockerConfig struct {
	Host     string
	Image    string
	CPULimit string
	MemLimit string
}

// AgentDefaults holds the process-wide fallbacks for controller bootstrap.
// Each (except BaseURL) may be overridden per INIT request.
type AgentDefaults struct {
	Agent         string
	Model         string
	APIKey        string //nolint:gosec // G117: LLM API key config
	BaseURL       string
	MaxIterations int
	MaxChars      int
}

// Load reads configuration from environment variables. Defaults are safe for
// local development only.
func Load() (*Config, error) {
	readTimeout, err := getEnvDuration("AGENTD_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("AGENTD_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	tokenTTL, err := getEnvDuration("AGENTD_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("AGENTD_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbPort, err := getEnvInt("AGENTD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("AGENTD_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxIterations, err := getEnvInt("AGENTD_MAX_ITERATIONS", 100)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxChars, err := getEnvInt("AGENTD_MAX_CHARS", 10_000_000)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:         getEnv("AGENTD_SERVER_ADDR", ":3000"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("AGENTD_CORS_ORIGINS", []string{"http://localhost:3001"}),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AGENTD_JWT_SECRET", ""),
			TokenTTL:  tokenTTL,
		},
		Redis: RedisConfig{
			Addr:     getEnv("AGENTD_REDIS_ADDR", ""),
			Password: getEnv("AGENTD_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Database: DatabaseConfig{
			Host:     getEnv("AGENTD_DB_HOST", ""),
			Port:     dbPort,
			User:     getEnv("AGENTD_DB_USER", "agentd"),
			Password: getEnv("AGENTD_DB_PASSWORD", ""),
			DBName:   getEnv("AGENTD_DB_NAME", "agentd_dev"),
			SSLMode:  getEnv("AGENTD_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Docker: DockerConfig{
			Host:     getEnv("AGENTD_DOCKER_HOST", "unix:///var/run/docker.sock"),
			Image:    getEnv("AGENTD_DOCKER_IMAGE", "ghcr.io/gosuda/agentd-sandbox:latest"),
			CPULimit: getEnv("AGENTD_DOCKER_CPU_LIMIT", "1"),
			MemLimit: getEnv("AGENTD_DOCKER_MEM_LIMIT", "1g"),
		},
		Agent: AgentDefaults{
			Agent:         getEnv("AGENTD_AGENT", "MonologueAgent"),
			Model:         getEnv("AGENTD_LLM_MODEL", "gpt-4o"),
			APIKey:        getEnv("AGENTD_LLM_API_KEY", ""),
			BaseURL:       getEnv("AGENTD_LLM_BASE_URL", "https://api.openai.com/v1"),
			MaxIterations: maxIterations,
			MaxChars:      maxChars,
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		log.Warn().Msg("AGENTD_JWT_SECRET is empty; authentication is disabled (local development only)")
	} else if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("AGENTD_JWT_SECRET must be at least 32 characters, got %d", len(c.Auth.JWTSecret))
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("AGENTD_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("AGENTD_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Database.Host != "" {
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("AGENTD_DB_PORT must be 1-65535, got %d", c.Database.Port)
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("AGENTD_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
		}
	}

	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("AGENTD_MAX_ITERATIONS must be >= 1, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.MaxChars < 1 {
		return fmt.Errorf("AGENTD_MAX_CHARS must be >= 1, got %d", c.Agent.MaxChars)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Enabled reports whether event-log persistence is configured.
func (c *DatabaseConfig) Enabled() bool { return c.Host != "" }

// Enabled reports whether the event mirror is configured.
func (c *RedisConfig) Enabled() bool { return c.Addr != "" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
