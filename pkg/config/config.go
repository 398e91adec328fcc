package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/helios/pkg/httputil"
	"github.com/platinummonkey/helios/pkg/observability"
	"github.com/platinummonkey/helios/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Auth          AuthConfig          `yaml:"auth"`
	Realtime      RealtimeConfig      `yaml:"realtime"`
	Storage       storage.Config      `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	CORSOrigins     []string      `yaml:"corsOrigins"`

	// TrustedProxies are addresses or CIDR ranges allowed to set
	// X-Forwarded-For; empty means the direct peer is always the client
	TrustedProxies []string `yaml:"trustedProxies"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"healthPort"`
}

// AuthConfig holds credential, token and lockout settings
type AuthConfig struct {
	AccessSecret   string        `yaml:"accessSecret"`
	RefreshSecret  string        `yaml:"refreshSecret"`
	AccessTTL      time.Duration `yaml:"accessTtl"`
	RefreshTTL     time.Duration `yaml:"refreshTtl"`
	RememberTTL    time.Duration `yaml:"rememberTtl"`
	BlacklistTTL   time.Duration `yaml:"blacklistTtl"`
	BcryptCost     int           `yaml:"bcryptCost"`
	PasswordStrict bool          `yaml:"passwordStrict"`

	MaxLoginAttempts int           `yaml:"maxLoginAttempts"`
	LockoutDuration  time.Duration `yaml:"lockoutDuration"`

	// Per-IP throttling of login and registration
	RateLimitRequests int           `yaml:"rateLimitRequests"`
	RateLimitWindow   time.Duration `yaml:"rateLimitWindow"`
	RateLimitBurst    int           `yaml:"rateLimitBurst"`
}

// RealtimeConfig holds websocket broadcast settings
type RealtimeConfig struct {
	HealthInterval        time.Duration `yaml:"healthInterval"`
	MetricsInterval       time.Duration `yaml:"metricsInterval"`
	AuthorizeJoins        bool          `yaml:"authorizeJoins"`
	SendQueueSize         int           `yaml:"sendQueueSize"`
	RecentMetricsCapacity int           `yaml:"recentMetricsCapacity"`
	NotificationCapacity  int           `yaml:"notificationCapacity"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"logLevel"`

	// Metrics
	MetricsEnabled bool `yaml:"metricsEnabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otelEnabled"`
	OTelEndpoint       string `yaml:"otelEndpoint"`
	OTelServiceName    string `yaml:"otelServiceName"`
	OTelServiceVersion string `yaml:"otelServiceVersion"`
	OTelInsecure       bool   `yaml:"otelInsecure"` // Use insecure gRPC connection
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return parseLogLevel(o.LogLevel)
}

// Default returns the built-in configuration. Signing secrets have no
// default and must be supplied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "3001",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORSOrigins:     []string{"http://localhost:3000"},
			HealthPort:      "9090",
		},
		Auth: AuthConfig{
			AccessTTL:         15 * time.Minute,
			RefreshTTL:        7 * 24 * time.Hour,
			RememberTTL:       30 * 24 * time.Hour,
			BlacklistTTL:      15 * time.Minute,
			BcryptCost:        12,
			MaxLoginAttempts:  5,
			LockoutDuration:   30 * time.Minute,
			RateLimitRequests: 20,
			RateLimitWindow:   15 * time.Minute,
			RateLimitBurst:    10,
		},
		Realtime: RealtimeConfig{
			HealthInterval:        30 * time.Second,
			MetricsInterval:       10 * time.Second,
			SendQueueSize:         256,
			RecentMetricsCapacity: 60,
			NotificationCapacity:  100,
		},
		Storage: storage.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "helios-platform",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig builds the configuration from defaults, the YAML file named by
// HELIOS_CONFIG_FILE if set, and HELIOS_* environment variables, in that
// order of precedence
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("HELIOS_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides every field whose variable is set
func (c *Config) applyEnv() {
	s := &c.Server
	s.Host = getEnv("HELIOS_HOST", s.Host)
	s.Port = getEnv("HELIOS_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("HELIOS_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("HELIOS_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("HELIOS_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("HELIOS_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.CORSOrigins = getEnvList("HELIOS_CORS_ORIGINS", s.CORSOrigins)
	s.TrustedProxies = getEnvList("HELIOS_TRUSTED_PROXIES", s.TrustedProxies)
	s.HealthPort = getEnv("HELIOS_HEALTH_PORT", s.HealthPort)

	a := &c.Auth
	a.AccessSecret = getEnv("HELIOS_JWT_SECRET", a.AccessSecret)
	a.RefreshSecret = getEnv("HELIOS_JWT_REFRESH_SECRET", a.RefreshSecret)
	a.AccessTTL = getEnvDuration("HELIOS_JWT_EXPIRES_IN", a.AccessTTL)
	a.RefreshTTL = getEnvDuration("HELIOS_JWT_REFRESH_EXPIRES_IN", a.RefreshTTL)
	a.RememberTTL = getEnvDuration("HELIOS_JWT_REMEMBER_EXPIRES_IN", a.RememberTTL)
	a.BlacklistTTL = getEnvDuration("HELIOS_BLACKLIST_TTL", a.BlacklistTTL)
	a.BcryptCost = getEnvInt("HELIOS_BCRYPT_ROUNDS", a.BcryptCost)
	a.PasswordStrict = getEnvBool("HELIOS_PASSWORD_STRICT", a.PasswordStrict)
	a.MaxLoginAttempts = getEnvInt("HELIOS_MAX_LOGIN_ATTEMPTS", a.MaxLoginAttempts)
	a.LockoutDuration = getEnvDuration("HELIOS_LOCKOUT_DURATION", a.LockoutDuration)
	a.RateLimitRequests = getEnvInt("HELIOS_AUTH_RATE_LIMIT", a.RateLimitRequests)
	a.RateLimitWindow = getEnvDuration("HELIOS_AUTH_RATE_WINDOW", a.RateLimitWindow)
	a.RateLimitBurst = getEnvInt("HELIOS_AUTH_RATE_BURST", a.RateLimitBurst)

	r := &c.Realtime
	r.HealthInterval = getEnvDuration("HELIOS_WS_HEALTH_INTERVAL", r.HealthInterval)
	r.MetricsInterval = getEnvDuration("HELIOS_WS_METRICS_INTERVAL", r.MetricsInterval)
	r.AuthorizeJoins = getEnvBool("HELIOS_WS_AUTHORIZE_JOINS", r.AuthorizeJoins)
	r.SendQueueSize = getEnvInt("HELIOS_WS_SEND_QUEUE", r.SendQueueSize)
	r.RecentMetricsCapacity = getEnvInt("HELIOS_WS_RECENT_METRICS", r.RecentMetricsCapacity)
	r.NotificationCapacity = getEnvInt("HELIOS_WS_RECENT_NOTIFICATIONS", r.NotificationCapacity)

	st := &c.Storage
	st.PostgresURL = getEnv("HELIOS_POSTGRES_URL", st.PostgresURL)
	st.PostgresReplicaURLs = getEnv("HELIOS_POSTGRES_REPLICA_URLS", st.PostgresReplicaURLs)
	st.PostgresMaxConns = getEnvInt("HELIOS_POSTGRES_MAX_CONNS", st.PostgresMaxConns)
	st.PostgresMinConns = getEnvInt("HELIOS_POSTGRES_MIN_CONNS", st.PostgresMinConns)
	st.PostgresTimeout = getEnvDuration("HELIOS_POSTGRES_TIMEOUT", st.PostgresTimeout)
	st.RedisEnabled = getEnvBool("HELIOS_REDIS_ENABLED", st.RedisEnabled)
	st.RedisURL = getEnv("HELIOS_REDIS_URL", st.RedisURL)
	st.RedisPassword = getEnv("HELIOS_REDIS_PASSWORD", st.RedisPassword)
	st.RedisDB = getEnvInt("HELIOS_REDIS_DB", st.RedisDB)
	st.RedisMaxRetries = getEnvInt("HELIOS_REDIS_MAX_RETRIES", st.RedisMaxRetries)
	st.RedisPoolSize = getEnvInt("HELIOS_REDIS_POOL_SIZE", st.RedisPoolSize)

	o := &c.Observability
	o.LogLevel = getEnv("HELIOS_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("HELIOS_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("HELIOS_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("HELIOS_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("HELIOS_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("HELIOS_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("HELIOS_OTEL_INSECURE", o.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if _, err := httputil.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return err
	}

	// Validate auth config
	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return errors.New("JWT access and refresh secrets are required")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("JWT access and refresh secrets must differ")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 || c.Auth.RememberTTL <= 0 {
		return errors.New("token expiry durations must be positive")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Auth.MaxLoginAttempts < 1 {
		return errors.New("max login attempts must be at least 1")
	}
	if c.Auth.LockoutDuration <= 0 {
		return errors.New("lockout duration must be positive")
	}

	// Broadcast jobs run on a cron schedule, which has one second resolution
	if c.Realtime.HealthInterval < time.Second || c.Realtime.MetricsInterval < time.Second {
		return errors.New("realtime broadcast intervals must be at least 1s")
	}

	// Validate storage config
	if c.Storage.PostgresURL == "" {
		return errors.New("postgres URL is required")
	}
	if c.Storage.RedisEnabled && c.Storage.RedisURL == "" {
		return errors.New("redis URL is required when redis is enabled")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
