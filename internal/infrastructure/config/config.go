package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the SlideBolt relay.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Relay     RelayConfig     `yaml:"relay"`
	Redis     RedisConfig     `yaml:"redis"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Stream    StreamConfig    `yaml:"stream"`
	Alexa     AlexaConfig     `yaml:"alexa"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains settings for the hub push channel.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// RelayConfig contains hub session and admission settings.
type RelayConfig struct {
	// ConnectionTTL is how long a registered connection stays valid (seconds).
	// The websocket is closed when it reaches this age so the hub re-registers.
	ConnectionTTL int `yaml:"connection_ttl"`

	// SweepInterval is how often expired connection, session and rate rows are deleted (seconds).
	SweepInterval int `yaml:"sweep_interval"`

	RateLimit HubRateLimitConfig `yaml:"rate_limit"`
}

// HubRateLimitConfig contains per-hub message admission settings.
type HubRateLimitConfig struct {
	// Backend is "sqlite" or "redis".
	Backend string `yaml:"backend"`

	// DefaultPerMinute applies to hubs without a configured limit.
	DefaultPerMinute int `yaml:"default_per_minute"`

	// WindowTTL is the expiry of a window row (seconds).
	WindowTTL int `yaml:"window_ttl"`
}

// RedisConfig contains Redis connection settings for the redis rate limit backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// StreamConfig controls how device mutations reach the change propagator.
type StreamConfig struct {
	// Transport is "local" (poller feeds the propagator in-process) or
	// "mqtt" (poller publishes, propagator subscribes).
	Transport string `yaml:"transport"`

	// PollInterval is the changelog poll period in milliseconds.
	PollInterval int `yaml:"poll_interval"`

	// BatchSize is the maximum number of changelog rows read per poll.
	BatchSize int `yaml:"batch_size"`

	// Retention is how long consumed changelog rows are kept (seconds).
	Retention int `yaml:"retention"`
}

// AlexaConfig contains the Login-with-Amazon and event gateway settings.
type AlexaConfig struct {
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	TokenURL        string `yaml:"token_url"`
	ProfileURL      string `yaml:"profile_url"`
	EventGatewayURL string `yaml:"event_gateway_url"`

	// HTTPTimeout bounds every outbound call (seconds).
	HTTPTimeout int `yaml:"http_timeout"`

	// AllowTestTokens accepts "user-<id>|<email>" bearer tokens without a
	// profile lookup. Never enable in production.
	AllowTestTokens bool `yaml:"allow_test_tokens"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT         JWTConfig       `yaml:"jwt"`
	AdminSecret string          `yaml:"admin_secret"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// JWTConfig contains JWT token settings for the admin control plane.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// RateLimitConfig contains per-IP HTTP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

// Supported backends and transports.
const (
	RateBackendSQLite = "sqlite"
	RateBackendRedis  = "redis"

	StreamTransportLocal = "local"
	StreamTransportMQTT  = "mqtt"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: SLIDEBOLT_SECTION_KEY
// For example: SLIDEBOLT_DATABASE_PATH, SLIDEBOLT_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/slidebolt.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/hub/ws",
			MaxMessageSize: 256 * 1024,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Relay: RelayConfig{
			ConnectionTTL: 24 * 60 * 60,
			SweepInterval: 60,
			RateLimit: HubRateLimitConfig{
				Backend:          RateBackendSQLite,
				DefaultPerMinute: 120,
				WindowTTL:        120,
			},
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "slidebolt-relay",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Stream: StreamConfig{
			Transport:    StreamTransportLocal,
			PollInterval: 500,
			BatchSize:    100,
			Retention:    24 * 60 * 60,
		},
		Alexa: AlexaConfig{
			TokenURL:        "https://api.amazon.com/auth/o2/token",
			ProfileURL:      "https://api.amazon.com/user/profile",
			EventGatewayURL: "https://api.amazonalexa.com/v3/events",
			HTTPTimeout:     5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 300,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: SLIDEBOLT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SLIDEBOLT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("SLIDEBOLT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("SLIDEBOLT_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("SLIDEBOLT_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SLIDEBOLT_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("SLIDEBOLT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("SLIDEBOLT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("SLIDEBOLT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("SLIDEBOLT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("SLIDEBOLT_ALEXA_CLIENT_ID"); v != "" {
		cfg.Alexa.ClientID = v
	}
	if v := os.Getenv("SLIDEBOLT_ALEXA_CLIENT_SECRET"); v != "" {
		cfg.Alexa.ClientSecret = v
	}

	// Secrets should always come from the environment in production.
	if v := os.Getenv("SLIDEBOLT_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
	if v := os.Getenv("SLIDEBOLT_ADMIN_SECRET"); v != "" {
		cfg.Security.AdminSecret = v
	}
}

// Validate checks the configuration for errors and security issues.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.Relay.ConnectionTTL <= 0 {
		errs = append(errs, "relay.connection_ttl must be positive")
	}

	switch c.Relay.RateLimit.Backend {
	case RateBackendSQLite:
	case RateBackendRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, "redis.addr is required when relay.rate_limit.backend is redis")
		}
	default:
		errs = append(errs, "relay.rate_limit.backend must be sqlite or redis")
	}

	switch c.Stream.Transport {
	case StreamTransportLocal:
	case StreamTransportMQTT:
		if !c.MQTT.Enabled {
			errs = append(errs, "mqtt.enabled must be true when stream.transport is mqtt")
		}
	default:
		errs = append(errs, "stream.transport must be local or mqtt")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// The JWT secret signs admin tokens; the admin secret is exchanged for them.
	const (
		minJWTSecretLength   = 32
		minAdminSecretLength = 16
	)
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set SLIDEBOLT_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}
	if c.Security.AdminSecret == "" {
		errs = append(errs, "security.admin_secret is required (set SLIDEBOLT_ADMIN_SECRET environment variable)")
	} else if len(c.Security.AdminSecret) < minAdminSecretLength {
		errs = append(errs, "security.admin_secret must be at least 16 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// ConnectionTTLDuration returns the hub connection lifetime as a Duration.
func (c RelayConfig) ConnectionTTLDuration() time.Duration {
	return time.Duration(c.ConnectionTTL) * time.Second
}

// SweepIntervalDuration returns the expired-row sweep period.
func (c RelayConfig) SweepIntervalDuration() time.Duration {
	if c.SweepInterval <= 0 {
		return time.Minute
	}
	return time.Duration(c.SweepInterval) * time.Second
}

// PollIntervalDuration returns the changelog poll period.
func (c StreamConfig) PollIntervalDuration() time.Duration {
	if c.PollInterval <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(c.PollInterval) * time.Millisecond
}

// RetentionDuration returns how long consumed changelog rows are kept.
func (c StreamConfig) RetentionDuration() time.Duration {
	return time.Duration(c.Retention) * time.Second
}

// HTTPTimeoutDuration returns the bound on outbound Alexa calls.
func (c AlexaConfig) HTTPTimeoutDuration() time.Duration {
	if c.HTTPTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.HTTPTimeout) * time.Second
}

// WindowTTLDuration returns the lifetime of one rate window.
func (c HubRateLimitConfig) WindowTTLDuration() time.Duration {
	if c.WindowTTL <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.WindowTTL) * time.Second
}
