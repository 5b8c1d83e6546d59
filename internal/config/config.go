package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	SessionTTL          time.Duration `mapstructure:"SESSION_TTL"`
	PendingSessionTTL   time.Duration `mapstructure:"PENDING_SESSION_TTL"`
	OTPTTL              time.Duration `mapstructure:"OTP_TTL"`
	OTPMaxAttempts      int           `mapstructure:"OTP_MAX_ATTEMPTS"`
	TreatmentDelay      time.Duration `mapstructure:"TREATMENT_DELAY"`
	CollaboratorTimeout time.Duration `mapstructure:"COLLABORATOR_TIMEOUT"`
	NotifyDriver        string        `mapstructure:"NOTIFY_DRIVER"`
	SQSQueueName        string        `mapstructure:"SQS_QUEUE_NAME"`
	KafkaBrokers        []string      `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic          string        `mapstructure:"KAFKA_TOPIC"`
	ArchiveBucket       string        `mapstructure:"ARCHIVE_BUCKET"`
	AuthRateLimitRPS    float64       `mapstructure:"AUTH_RATE_LIMIT_RPS"`
	AuthRateLimitBurst  int           `mapstructure:"AUTH_RATE_LIMIT_BURST"`
	MetricsEnabled      bool          `mapstructure:"METRICS_ENABLED"`
}

// devSigningKey signs tokens when ENV=development and no key is configured.
const devSigningKey = "development-only-signing-key-change-me"

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "SESSION_TTL", "PENDING_SESSION_TTL",
	"OTP_TTL", "OTP_MAX_ATTEMPTS", "TREATMENT_DELAY", "COLLABORATOR_TIMEOUT",
	"NOTIFY_DRIVER", "SQS_QUEUE_NAME", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"ARCHIVE_BUCKET", "AUTH_RATE_LIMIT_RPS", "AUTH_RATE_LIMIT_BURST", "METRICS_ENABLED",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("AUTH_ISSUER", "carepath-portal")
	v.SetDefault("SESSION_TTL", 12*time.Hour)
	v.SetDefault("PENDING_SESSION_TTL", 10*time.Minute)
	v.SetDefault("OTP_TTL", 10*time.Minute)
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("TREATMENT_DELAY", 3*time.Second)
	v.SetDefault("COLLABORATOR_TIMEOUT", 15*time.Second)
	v.SetDefault("NOTIFY_DRIVER", "log")
	v.SetDefault("SQS_QUEUE_NAME", "portal-email")
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_TOPIC", "portal.email")
	v.SetDefault("AUTH_RATE_LIMIT_RPS", 1)
	v.SetDefault("AUTH_RATE_LIMIT_BURST", 5)
	v.SetDefault("METRICS_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(cfg.CORSOrigins, v.GetString("CORS_ORIGINS"))
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers, v.GetString("KAFKA_BROKERS"))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: AUTH_SIGNING_KEY not set, using the development signing key.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		cfg.AuthSigningKey = devSigningKey
	}

	return cfg, nil
}

// splitList turns a comma separated value into a trimmed list, falling back
// to the decoded value when the raw string is empty.
func splitList(decoded []string, raw string) []string {
	if raw == "" {
		return decoded
	}
	var out []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.IsProduction() && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes in production, got %d", len(c.AuthSigningKey))
	}

	// Every Profile Store, Ledger and Dispatcher call runs under this bound.
	if c.CollaboratorTimeout < 10*time.Second || c.CollaboratorTimeout > 30*time.Second {
		return fmt.Errorf("COLLABORATOR_TIMEOUT must be between 10s and 30s, got %s", c.CollaboratorTimeout)
	}
	if c.TreatmentDelay < 0 {
		return fmt.Errorf("TREATMENT_DELAY must not be negative, got %s", c.TreatmentDelay)
	}
	if c.OTPMaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be at least 1, got %d", c.OTPMaxAttempts)
	}

	switch c.NotifyDriver {
	case "log":
	case "sqs":
		if c.SQSQueueName == "" {
			return fmt.Errorf("SQS_QUEUE_NAME is required when NOTIFY_DRIVER is \"sqs\"")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_BROKERS and KAFKA_TOPIC are required when NOTIFY_DRIVER is \"kafka\"")
		}
	default:
		return fmt.Errorf("NOTIFY_DRIVER must be \"log\", \"sqs\", or \"kafka\", got %q", c.NotifyDriver)
	}

	return nil
}
