// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/capitalize-ai/support-inbox/internal/apperr"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `envconfig:"PORT" default:"8080"`
	ServerReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	ServerWriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`

	// Database settings
	DatabaseDriver string `envconfig:"DATABASE_DRIVER" default:"postgres"`
	DatabaseURL    string `envconfig:"DATABASE_URL"`

	// NATS settings
	NATSURL      string `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	NATSCAFile   string `envconfig:"NATS_CA_FILE"`
	NATSCertFile string `envconfig:"NATS_CERT_FILE"`
	NATSKeyFile  string `envconfig:"NATS_KEY_FILE"`
	NATSToken    string `envconfig:"NATS_TOKEN"`

	// Redis is optional; without it webhook retries are only caught by the store.
	RedisAddr string        `envconfig:"REDIS_ADDR"`
	DedupeTTL time.Duration `envconfig:"DEDUPE_TTL" default:"24h"`

	// JWT settings
	JWTSecret string `envconfig:"JWT_SECRET"`

	// WhatsApp Cloud API
	WhatsAppVerifyToken      string `envconfig:"WHATSAPP_VERIFY_TOKEN"`
	WhatsAppAppSecret        string `envconfig:"WHATSAPP_APP_SECRET"`
	WhatsAppAccessToken      string `envconfig:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppPhoneNumberID    string `envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
	WhatsAppAPIBaseURL       string `envconfig:"WHATSAPP_API_BASE_URL" default:"https://graph.facebook.com/v21.0"`
	WhatsAppTemplateLanguage string `envconfig:"WHATSAPP_TEMPLATE_LANGUAGE" default:"en_US"`

	// Attachment storage
	AttachmentBucket    string `envconfig:"ATTACHMENT_BUCKET"`
	AttachmentCDNDomain string `envconfig:"ATTACHMENT_CDN_DOMAIN"`
	StorageEmulatorHost string `envconfig:"STORAGE_EMULATOR_HOST"`

	// BlockedNotice is sent to blocked customers who write in. Empty disables it.
	BlockedNotice string `envconfig:"BLOCKED_NOTICE" default:"This number is no longer accepting messages."`

	// Rate limiting
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Tracing
	TracingEndpoint string `envconfig:"TRACING_ENDPOINT" default:"localhost:4318"`
	TracingEnabled  bool   `envconfig:"TRACING_ENABLED" default:"false"`
}

// Load reads configuration from a .env file, if present, and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, apperr.Config("config.Load", fmt.Errorf("failed to process environment: %w", err))
	}
	return &c, nil
}

// Validate reports every required setting that is missing.
func (c *Config) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"WHATSAPP_VERIFY_TOKEN", c.WhatsAppVerifyToken},
		{"WHATSAPP_ACCESS_TOKEN", c.WhatsAppAccessToken},
		{"WHATSAPP_PHONE_NUMBER_ID", c.WhatsAppPhoneNumberID},
		{"DATABASE_URL", c.DatabaseURL},
		{"JWT_SECRET", c.JWTSecret},
		{"ATTACHMENT_BUCKET", c.AttachmentBucket},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.key)
		}
	}
	if len(missing) > 0 {
		return apperr.Config("config.Validate", fmt.Errorf("missing required settings: %s", strings.Join(missing, ", ")))
	}

	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return apperr.Config("config.Validate", fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	return nil
}
