package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Common
	Environment string
	LogLevel    string

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Services
	Chartd    ChartdConfig
	API       APIConfig
	WSGateway WSGatewayConfig
}

// DatabaseConfig holds PostgreSQL/TimescaleDB configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// ChartdConfig holds chart engine service configuration
type ChartdConfig struct {
	HealthCheckPort int
	ConsumerGroup   string
	BarStream       string // Stream of finalized bars consumed by the engine
	UpdateStream    string // Stream the engine publishes chart updates to
	MaxBars         int    // Bar history kept per symbol for recomputation
	UpdateTTL       time.Duration

	// Indicator parameters
	Indicators IndicatorParams

	// Database write configuration (persisting consumed bars)
	DBWriteBatchSize int
	DBWriteInterval  time.Duration
	DBWriteQueueSize int
	DBMaxRetries     int
	DBRetryDelay     time.Duration
}

// IndicatorParams holds the periods the engine computes on every update
type IndicatorParams struct {
	SMAPeriod       int
	EMAPeriod       int
	RSIPeriod       int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	BollingerPeriod int
	BollingerMult   float64
}

// APIConfig holds chart API configuration
type APIConfig struct {
	Port            int
	HealthCheckPort int
	MaxBars         int // History window for on-demand computation
}

// WSGatewayConfig holds WebSocket gateway configuration
type WSGatewayConfig struct {
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
	PingInterval          time.Duration
	MaxConnections        int
	MaxConnectionsPerUser int // 0 disables the per-user limit
	JWTSecret             string
	UpdateStream          string
	ConsumerGroup         string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "chartengine"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Chartd: ChartdConfig{
			HealthCheckPort: getEnvAsInt("CHARTD_HEALTH_PORT", 8085),
			ConsumerGroup:   getEnv("CHARTD_CONSUMER_GROUP", "chart-engine"),
			BarStream:       getEnv("CHARTD_BAR_STREAM", "bars.1m"),
			UpdateStream:    getEnv("CHARTD_UPDATE_STREAM", "chart.updates"),
			MaxBars:         getEnvAsInt("CHARTD_MAX_BARS", 500),
			UpdateTTL:       getEnvAsDuration("CHARTD_UPDATE_TTL", 10*time.Minute),
			Indicators: IndicatorParams{
				SMAPeriod:       getEnvAsInt("CHARTD_SMA_PERIOD", 20),
				EMAPeriod:       getEnvAsInt("CHARTD_EMA_PERIOD", 12),
				RSIPeriod:       getEnvAsInt("CHARTD_RSI_PERIOD", 14),
				MACDFast:        getEnvAsInt("CHARTD_MACD_FAST", 12),
				MACDSlow:        getEnvAsInt("CHARTD_MACD_SLOW", 26),
				MACDSignal:      getEnvAsInt("CHARTD_MACD_SIGNAL", 9),
				BollingerPeriod: getEnvAsInt("CHARTD_BOLLINGER_PERIOD", 20),
				BollingerMult:   getEnvAsFloat("CHARTD_BOLLINGER_MULT", 2.0),
			},
			DBWriteBatchSize: getEnvAsInt("CHARTD_DB_WRITE_BATCH_SIZE", 500),
			DBWriteInterval:  getEnvAsDuration("CHARTD_DB_WRITE_INTERVAL", 1*time.Second),
			DBWriteQueueSize: getEnvAsInt("CHARTD_DB_WRITE_QUEUE_SIZE", 5000),
			DBMaxRetries:     getEnvAsInt("CHARTD_DB_MAX_RETRIES", 3),
			DBRetryDelay:     getEnvAsDuration("CHARTD_DB_RETRY_DELAY", 100*time.Millisecond),
		},
		API: APIConfig{
			Port:            getEnvAsInt("API_PORT", 8090),
			HealthCheckPort: getEnvAsInt("API_HEALTH_PORT", 8091),
			MaxBars:         getEnvAsInt("API_MAX_BARS", 500),
		},
		WSGateway: WSGatewayConfig{
			ReadTimeout:           getEnvAsDuration("WS_GATEWAY_READ_TIMEOUT", 60*time.Second),
			WriteTimeout:          getEnvAsDuration("WS_GATEWAY_WRITE_TIMEOUT", 10*time.Second),
			PingInterval:          getEnvAsDuration("WS_GATEWAY_PING_INTERVAL", 30*time.Second),
			MaxConnections:        getEnvAsInt("WS_GATEWAY_MAX_CONNECTIONS", 1000),
			MaxConnectionsPerUser: getEnvAsInt("WS_GATEWAY_MAX_CONNECTIONS_PER_USER", 10),
			JWTSecret:             getEnv("WS_GATEWAY_JWT_SECRET", ""),
			UpdateStream:          getEnv("WS_GATEWAY_UPDATE_STREAM", "chart.updates"),
			ConsumerGroup:         getEnv("WS_GATEWAY_CONSUMER_GROUP", "ws-gateway"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.Chartd.MaxBars < 1 {
		return fmt.Errorf("CHARTD_MAX_BARS must be at least 1")
	}
	if err := c.Chartd.Indicators.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate rejects parameter sets the indicator functions would refuse, so
// a misconfigured chartd fails at startup instead of on every consumed bar.
func (p IndicatorParams) Validate() error {
	periods := []struct {
		name  string
		value int
	}{
		{"CHARTD_SMA_PERIOD", p.SMAPeriod},
		{"CHARTD_EMA_PERIOD", p.EMAPeriod},
		{"CHARTD_RSI_PERIOD", p.RSIPeriod},
		{"CHARTD_MACD_FAST", p.MACDFast},
		{"CHARTD_MACD_SLOW", p.MACDSlow},
		{"CHARTD_MACD_SIGNAL", p.MACDSignal},
		{"CHARTD_BOLLINGER_PERIOD", p.BollingerPeriod},
	}
	for _, period := range periods {
		if period.value < 1 {
			return fmt.Errorf("%s must be at least 1", period.name)
		}
	}
	if p.BollingerMult < 0 {
		return fmt.Errorf("CHARTD_BOLLINGER_MULT must be non-negative")
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

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}
