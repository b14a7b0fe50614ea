package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	LLM       LLMConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	Queue     QueueConfig
	Workflow  WorkflowConfig
	Cache     CacheConfig
	WebSocket WebSocketConfig
	Storage   StorageConfig
	Logging   LoggingConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
}

// LLMConfig holds language model client settings
type LLMConfig struct {
	APIKey        string
	Model         string
	Temperature   float64
	MaxRetries    int
	RetryDelay    time.Duration
	StreamTimeout time.Duration
	SavePartial   bool
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL      string
	PoolSize int
}

// DatabaseConfig holds optional Postgres settings for run history
type DatabaseConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// QueueConfig holds task queue settings
type QueueConfig struct {
	Enabled     bool
	MaxWorkers  int
	TaskTimeout time.Duration
}

// WorkflowConfig holds workflow engine settings
type WorkflowConfig struct {
	Timeout    time.Duration
	MaxRetries int
}

// CacheConfig holds conversation and vector store cache bounds
type CacheConfig struct {
	MaxConversations int
	ConversationTTL  time.Duration
	MaxVectorStores  int
}

// WebSocketConfig holds websocket settings
type WebSocketConfig struct {
	IdleTimeout time.Duration
}

// StorageConfig holds on-disk blob store locations
type StorageConfig struct {
	Dir string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level         string
	Dir           string
	EnableFile    bool
	EnableConsole bool
	JSONFormat    bool
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		LLM: LLMConfig{
			APIKey:        getEnv("LLM_API_KEY", ""),
			Model:         getEnv("LLM_MODEL", "gpt-4"),
			Temperature:   getEnvFloat("LLM_TEMPERATURE", 0.7),
			MaxRetries:    getEnvInt("LLM_MAX_RETRIES", 3),
			RetryDelay:    getEnvDuration("LLM_RETRY_DELAY", 1*time.Second),
			StreamTimeout: getEnvDuration("LLM_STREAM_TIMEOUT", 300*time.Second),
			SavePartial:   getEnvBool("LLM_SAVE_PARTIAL", true),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 10),
		},
		Database: DatabaseConfig{
			Enabled:     getEnvBool("DATABASE_ENABLED", false),
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "chatflow"),
			User:        getEnv("POSTGRES_USER", "chatflow"),
			Password:    getEnv("POSTGRES_PASSWORD", "chatflow"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 10),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Queue: QueueConfig{
			Enabled:     getEnvBool("QUEUE_ENABLED", true),
			MaxWorkers:  getEnvInt("MAX_WORKERS", 5),
			TaskTimeout: getEnvDuration("TASK_TIMEOUT", 3600*time.Second),
		},
		Workflow: WorkflowConfig{
			Timeout:    getEnvDuration("WORKFLOW_TIMEOUT", 3600*time.Second),
			MaxRetries: getEnvInt("MAX_RETRIES", 3),
		},
		Cache: CacheConfig{
			MaxConversations: getEnvInt("MAX_CONVERSATIONS", 1000),
			ConversationTTL:  getEnvDuration("CONVERSATION_TTL", 3600*time.Second),
			MaxVectorStores:  getEnvInt("MAX_VECTOR_STORES", 50),
		},
		WebSocket: WebSocketConfig{
			IdleTimeout: getEnvDuration("WEBSOCKET_TIMEOUT", 300*time.Second),
		},
		Storage: StorageConfig{
			Dir: getEnv("STORAGE_DIR", "./storage"),
		},
		Logging: LoggingConfig{
			Level:         getEnv("LOG_LEVEL", "info"),
			Dir:           getEnv("LOG_DIR", "./logs"),
			EnableFile:    getEnvBool("ENABLE_FILE_LOGGING", true),
			EnableConsole: getEnvBool("ENABLE_CONSOLE_LOGGING", true),
			JSONFormat:    getEnvBool("LOG_JSON_FORMAT", false),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required")
	}

	if c.Queue.MaxWorkers < 1 {
		return fmt.Errorf("max_workers must be >= 1")
	}

	if c.Cache.MaxConversations < 1 {
		return fmt.Errorf("max_conversations must be >= 1")
	}

	if c.Database.Enabled && c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		// Plain integers are treated as seconds
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
