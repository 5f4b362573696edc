package config

import (
	"time"

	"github.com/Gobusters/ectoenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppName                       string        `env:"APP_NAME" env-default:"engine-api"`
	Version                       string        `env:"APP_VERSION" env-default:"dev"`
	Port                          int           `env:"PORT" env-default:"3000"`
	LogLevel                      string        `env:"LOG_LEVEL" env-default:"info"`
	PrettyLogs                    bool          `env:"PRETTY_LOGS" env-default:"false"`
	HttpServerWriteTimeoutSeconds int           `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"30"`
	HttpServerReadTimeoutSeconds  int           `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int           `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"60"`
	MaxHeaderBytes                int           `env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"`
	ReadHeaderTimeoutSeconds      int           `env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  []string      `env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  []string      `env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST"`
	StartupMaxAttempts            int           `env:"STARTUP_MAX_ATTEMPTS" env-default:"5"`
	ShutdownTimeout               time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`

	// Database driver
	DatabaseDriver string `env:"DB_DRIVER" env-default:"postgres"`
	// Database host
	DatabaseHost string `env:"DB_HOST" env-default:""`
	// Database port
	DatabasePort string `env:"DB_PORT" env-default:"5432"`
	// Database user
	DatabaseUserName string `env:"DB_USER_NAME" env-default:""`
	// Database user password
	DatabasePassword string `env:"DB_PASSWORD" env-default:""`
	// Database name
	DatabaseName            string        `env:"DB_NAME" env-default:"engine"`
	DatabaseSSLMode         string        `env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" env-default:"5m"`
	// Migration Folder Path
	DatabaseMigrationFolderPath string `env:"DB_MIGRATION_FOLDER_PATH" env-default:"db/pg"`
	// Database Migration Version, 0 means latest
	DatabaseMigrationVersion      int  `env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int  `env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool `env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Auth Enabled - when false the admin routes are open
	AuthEnabled bool `env:"AUTH_ENABLED" env-default:"false"`
	// Auth Issuer URL
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" env-default:""`
	// Auth Client ID
	AuthClientID string `env:"AUTH_CLIENT_ID" env-default:""`
	// Realm role required on /admin routes
	AuthAdminRole string `env:"AUTH_ADMIN_ROLE" env-default:"tenant-admin"`

	// Redis is optional; without it locks and invalidations stay local to the replica
	RedisEnabled  bool   `env:"REDIS_ENABLED" env-default:"true"`
	RedisHost     string `env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int    `env:"REDIS_DB" env-default:"0"`

	// Kafka event publishing is optional
	KafkaEnabled bool `env:"KAFKA_ENABLED" env-default:"false"`
	// Kafka brokers (comma-separated)
	KafkaBrokers     string `env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaEventsTopic string `env:"KAFKA_EVENTS_TOPIC" env-default:"engine-events"`

	// Tenant context cache
	TenantCacheTTL           time.Duration `env:"TENANT_CACHE_TTL" env-default:"15m"`
	TenantCacheSweepInterval time.Duration `env:"TENANT_CACHE_SWEEP_INTERVAL" env-default:"5m"`

	// Credential blob key material
	CredentialPassphrase string `env:"CREDENTIAL_PASSPHRASE" env-default:""`
	CredentialSalt       string `env:"CREDENTIAL_SALT" env-default:""`

	// External system client
	ExternalTimeout    time.Duration `env:"EXTERNAL_TIMEOUT" env-default:"12s"`
	ExternalRetryCount int           `env:"EXTERNAL_RETRY_COUNT" env-default:"1"`
	ExternalRetryWait  time.Duration `env:"EXTERNAL_RETRY_WAIT" env-default:"200ms"`

	// Conversation lock
	ConversationLockTTL  time.Duration `env:"CONVERSATION_LOCK_TTL" env-default:"10s"`
	ConversationLockWait time.Duration `env:"CONVERSATION_LOCK_WAIT" env-default:"3s"`

	// Enable OTLP tracing export
	OTLPEnabled bool `env:"OTLP_ENABLED" env-default:"false"`
	// OTLP collector endpoint
	OTLPEndpoint string `env:"OTLP_ENDPOINT" env-default:"localhost:4317"`
	// OTLP protocol (grpc or http)
	OTLPProtocol string `env:"OTLP_PROTOCOL" env-default:"grpc"`
	// Disable TLS for OTLP (for local development)
	OTLPInsecure bool `env:"OTLP_INSECURE" env-default:"true"`
	// Extra exporter headers as key=value pairs
	OTLPHeaders string `env:"OTLP_HEADERS" env-default:""`
}

// Load reads an optional .env file and binds the environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := ectoenv.BindEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
