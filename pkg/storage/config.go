package storage

import "time"

// Config for storage backends
type Config struct {
	// PostgreSQL config
	PostgresURL         string        `yaml:"postgresUrl"`
	PostgresReplicaURLs string        `yaml:"postgresReplicaUrls"` // Comma-separated
	PostgresMaxConns    int           `yaml:"postgresMaxConns"`
	PostgresMinConns    int           `yaml:"postgresMinConns"`
	PostgresTimeout     time.Duration `yaml:"postgresTimeout"`
	PostgresMaxLifetime time.Duration `yaml:"postgresMaxLifetime"`
	PostgresMaxIdleTime time.Duration `yaml:"postgresMaxIdleTime"`

	// Redis config
	RedisEnabled    bool   `yaml:"redisEnabled"`
	RedisURL        string `yaml:"redisUrl"`
	RedisPassword   string `yaml:"redisPassword"`
	RedisDB         int    `yaml:"redisDb"`
	RedisMaxRetries int    `yaml:"redisMaxRetries"`
	RedisPoolSize   int    `yaml:"redisPoolSize"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		PostgresURL:         "postgres://localhost:5432/helios?sslmode=disable",
		PostgresMaxConns:    20,
		PostgresMinConns:    2,
		PostgresTimeout:     10 * time.Second,
		PostgresMaxLifetime: 30 * time.Minute,
		PostgresMaxIdleTime: 5 * time.Minute,
		RedisEnabled:        false,
		RedisURL:            "redis://localhost:6379/0",
		RedisDB:             -1,
		RedisMaxRetries:     3,
		RedisPoolSize:       10,
	}
}
