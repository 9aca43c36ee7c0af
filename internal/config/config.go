package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Server     ServerConfig
	Relay      RelayConfig
	Log        LogConfig
	SelfHosted bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. An empty Addr runs the relay
// without cross-instance fan-out.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// Enabled reports whether a Redis bridge should be started.
func (c *RedisConfig) Enabled() bool { return c.Addr != "" }

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // G117: JWT signing secret config
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// RelayConfig tunes the presence relay and its WebSocket transport.
type RelayConfig struct {
	InstanceID   string
	SendBuffer   int
	BridgeBuffer int
	// MessagesPerSecond and Burst limit inbound frames per connection.
	MessagesPerSecond float64
	Burst             int
	MaxFrameBytes     int64
	PingInterval      time.Duration
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level string
	// Format is "json" or "text".
	Format string
}

// ClientConfig configures a headless collaboration client.
type ClientConfig struct {
	URL            string
	Token          string
	Board          string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	CursorTTL      time.Duration
	TypingTTL      time.Duration
	Log            LogConfig
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("PINBOARD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("PINBOARD_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("PINBOARD_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("PINBOARD_JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	refreshTTL, err := getEnvDuration("PINBOARD_JWT_REFRESH_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("PINBOARD_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("PINBOARD_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sendBuffer, err := getEnvInt("PINBOARD_RELAY_SEND_BUFFER", 256)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	bridgeBuffer, err := getEnvInt("PINBOARD_RELAY_BRIDGE_BUFFER", 1024)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	msgRate, err := getEnvFloat("PINBOARD_RELAY_RATE", 60)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	burst, err := getEnvInt("PINBOARD_RELAY_BURST", 120)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxFrame, err := getEnvInt("PINBOARD_RELAY_MAX_FRAME_BYTES", 64<<10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	pingInterval, err := getEnvDuration("PINBOARD_RELAY_PING_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("PINBOARD_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("PINBOARD_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("PINBOARD_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("PINBOARD_DB_USER", "pinboard"),
			Password: getEnv("PINBOARD_DB_PASSWORD", ""),
			DBName:   getEnv("PINBOARD_DB_NAME", "pinboard_dev"),
			SSLMode:  getEnv("PINBOARD_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("PINBOARD_REDIS_ADDR", ""),
			Password: getEnv("PINBOARD_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:     getEnv("PINBOARD_JWT_SECRET", ""),
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		},
		Server: ServerConfig{
			Addr:         getEnv("PINBOARD_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Relay: RelayConfig{
			InstanceID:        getEnv("PINBOARD_RELAY_INSTANCE_ID", ""),
			SendBuffer:        sendBuffer,
			BridgeBuffer:      bridgeBuffer,
			MessagesPerSecond: msgRate,
			Burst:             burst,
			MaxFrameBytes:     int64(maxFrame),
			PingInterval:      pingInterval,
		},
		Log:        loadLog(),
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// LoadClient reads the collaboration client settings.
func LoadClient() (*ClientConfig, error) {
	attempts, err := getEnvInt("PINBOARD_CLIENT_MAX_ATTEMPTS", 5)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	initial, err := getEnvDuration("PINBOARD_CLIENT_INITIAL_BACKOFF", time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	maxBackoff, err := getEnvDuration("PINBOARD_CLIENT_MAX_BACKOFF", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	cursorTTL, err := getEnvDuration("PINBOARD_CLIENT_CURSOR_TTL", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	typingTTL, err := getEnvDuration("PINBOARD_CLIENT_TYPING_TTL", 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	cfg := &ClientConfig{
		URL:            getEnv("PINBOARD_CLIENT_URL", "ws://localhost:8080/ws"),
		Token:          getEnv("PINBOARD_CLIENT_TOKEN", ""),
		Board:          getEnv("PINBOARD_CLIENT_BOARD", ""),
		MaxAttempts:    attempts,
		InitialBackoff: initial,
		MaxBackoff:     maxBackoff,
		CursorTTL:      cursorTTL,
		TypingTTL:      typingTTL,
		Log:            loadLog(),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}
	return cfg, nil
}

func loadLog() LogConfig {
	return LogConfig{
		Level:  getEnv("PINBOARD_LOG_LEVEL", "info"),
		Format: getEnv("PINBOARD_LOG_FORMAT", "json"),
	}
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("PINBOARD_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("PINBOARD_JWT_SECRET must be at least 32 characters")
	}

	// DB SSL mode warning for non-self-hosted deployments.
	if c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("PINBOARD_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("PINBOARD_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("PINBOARD_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("PINBOARD_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("PINBOARD_JWT_REFRESH_TTL must be positive, got %s", c.JWT.RefreshTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("PINBOARD_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("PINBOARD_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Relay.SendBuffer < 1 {
		return fmt.Errorf("PINBOARD_RELAY_SEND_BUFFER must be >= 1, got %d", c.Relay.SendBuffer)
	}
	if c.Relay.BridgeBuffer < 1 {
		return fmt.Errorf("PINBOARD_RELAY_BRIDGE_BUFFER must be >= 1, got %d", c.Relay.BridgeBuffer)
	}
	if c.Relay.MessagesPerSecond <= 0 {
		return fmt.Errorf("PINBOARD_RELAY_RATE must be positive, got %g", c.Relay.MessagesPerSecond)
	}
	if c.Relay.Burst < 1 {
		return fmt.Errorf("PINBOARD_RELAY_BURST must be >= 1, got %d", c.Relay.Burst)
	}
	if c.Relay.MaxFrameBytes < 1 {
		return fmt.Errorf("PINBOARD_RELAY_MAX_FRAME_BYTES must be >= 1, got %d", c.Relay.MaxFrameBytes)
	}
	if c.Relay.PingInterval <= 0 {
		return fmt.Errorf("PINBOARD_RELAY_PING_INTERVAL must be positive, got %s", c.Relay.PingInterval)
	}

	return nil
}

func (c *ClientConfig) validate() error {
	if c.URL == "" {
		return errors.New("PINBOARD_CLIENT_URL is required")
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("PINBOARD_CLIENT_MAX_ATTEMPTS must be >= 1, got %d", c.MaxAttempts)
	}
	if c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("PINBOARD_CLIENT_MAX_BACKOFF (%s) must be >= PINBOARD_CLIENT_INITIAL_BACKOFF (%s) > 0", c.MaxBackoff, c.InitialBackoff)
	}
	if c.CursorTTL <= 0 {
		return fmt.Errorf("PINBOARD_CLIENT_CURSOR_TTL must be positive, got %s", c.CursorTTL)
	}
	if c.TypingTTL <= 0 {
		return fmt.Errorf("PINBOARD_CLIENT_TYPING_TTL must be positive, got %s", c.TypingTTL)
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

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
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
