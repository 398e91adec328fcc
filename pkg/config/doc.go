// Package config provides application configuration management.
//
// # Overview
//
// Configuration is assembled in three layers. Built-in defaults come first,
// then an optional YAML file named by HELIOS_CONFIG_FILE, then HELIOS_*
// environment variables. The result is validated before it is returned.
//
// # Configuration Structure
//
// Server settings:
//
//	HELIOS_HOST="0.0.0.0"
//	HELIOS_PORT="3001"
//	HELIOS_HEALTH_PORT="9090"
//	HELIOS_CORS_ORIGINS="https://app.example.com,https://admin.example.com"
//
// Authentication settings:
//
//	HELIOS_JWT_SECRET="..."              # required
//	HELIOS_JWT_REFRESH_SECRET="..."      # required, must differ
//	HELIOS_JWT_EXPIRES_IN="15m"
//	HELIOS_JWT_REFRESH_EXPIRES_IN="168h"
//	HELIOS_BCRYPT_ROUNDS="12"
//	HELIOS_MAX_LOGIN_ATTEMPTS="5"
//	HELIOS_LOCKOUT_DURATION="30m"
//
// Session store settings:
//
//	HELIOS_REDIS_ENABLED="true"
//	HELIOS_REDIS_URL="redis://localhost:6379/0"
//
// Real-time settings:
//
//	HELIOS_WS_HEALTH_INTERVAL="30s"
//	HELIOS_WS_METRICS_INTERVAL="10s"
//	HELIOS_WS_AUTHORIZE_JOINS="false"
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
//
// An equivalent YAML file:
//
//	auth:
//	  accessSecret: change-me
//	  refreshSecret: change-me-too
//	storage:
//	  redisEnabled: true
//	  redisUrl: redis://cache:6379/0
package config
