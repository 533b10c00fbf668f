package config

// Config holds all service configuration loaded from environment variables
// via github.com/caarlos0/env. File-based gameplay settings live in
// Settings and are loaded separately from SettingsPath.
type Config struct {
	// Server configuration
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8090"`
	MetricsPort int    `env:"METRICS_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"CheaterCheck"`

	// Host shim configuration (REQUIRED). The shim is the thin plugin on
	// the game server that forwards events here and executes what we send
	// back.
	HostBaseURL string `env:"HOST_BASE_URL,required"`
	HostToken   string `env:"HOST_TOKEN"`

	// Staff API authentication
	JWTSecret string `env:"JWT_SECRET,required"`

	// Redis configuration
	RedisHost         string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort         string `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword     string `env:"REDIS_PASSWORD"`
	RedisMaxRetries   int    `env:"REDIS_MAX_RETRIES" envDefault:"5"`
	RedisRetryDelayMs int    `env:"REDIS_RETRY_DELAY_MS" envDefault:"1000"`

	// Gameplay settings file
	SettingsPath string `env:"SETTINGS_PATH" envDefault:"config/settings.yaml"`

	// Discord webhook for moderation reports; empty disables reporting
	DiscordWebhookURL string `env:"DISCORD_WEBHOOK_URL"`

	// Telemetry configuration
	OtelEnabled     bool   `env:"OTEL_ENABLED" envDefault:"true"`
	OtelEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OtelServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"cheatercheck"`
}
