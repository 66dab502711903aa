// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// BcryptCost is the bcrypt cost factor (4–31) for backup code hashes; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// EncryptionKey is the hex-encoded 32-byte AES key for at-rest encryption
	// of phone numbers and TOTP secrets. Required.
	EncryptionKey string `mapstructure:"MFA_ENCRYPTION_KEY"`
	// TOTPIssuer is the issuer label shown in authenticator apps.
	TOTPIssuer string `mapstructure:"TOTP_ISSUER"`

	// SMSLocalAPIKey is the API key for the SMS delivery provider.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL overrides the provider API base URL. Empty means the
	// gateway client's default endpoint.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// WebAuthnRPID is the relying-party ID (e.g. "example.com").
	WebAuthnRPID string `mapstructure:"WEBAUTHN_RP_ID"`
	// WebAuthnRPDisplayName is the relying-party display name.
	WebAuthnRPDisplayName string `mapstructure:"WEBAUTHN_RP_DISPLAY_NAME"`
	// WebAuthnRPOrigins is a comma-separated list of allowed origins.
	WebAuthnRPOrigins string `mapstructure:"WEBAUTHN_RP_ORIGINS"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; signs step-up tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim on step-up tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim on step-up tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// StepUpTTL is the step-up token lifetime (e.g. "5m").
	StepUpTTL string `mapstructure:"STEP_UP_TTL"`

	// KafkaBrokers is a comma-separated list of broker addresses; when set,
	// audit events are additionally published to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaAuditTopic is the audit fan-out topic (default mfa-audit).
	KafkaAuditTopic string `mapstructure:"KAFKA_AUDIT_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("MFA_ENCRYPTION_KEY", "")
	v.SetDefault("TOTP_ISSUER", "enterprise-mfa")
	v.SetDefault("SMS_LOCAL_BASE_URL", "")
	v.SetDefault("WEBAUTHN_RP_ID", "localhost")
	v.SetDefault("WEBAUTHN_RP_DISPLAY_NAME", "Enterprise MFA")
	v.SetDefault("WEBAUTHN_RP_ORIGINS", "http://localhost:8080")
	v.SetDefault("JWT_ISSUER", "mfa-stepup")
	v.SetDefault("JWT_AUDIENCE", "mfa-api")
	v.SetDefault("STEP_UP_TTL", "5m")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_AUDIT_TOPIC", "mfa-audit")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	if cfg.EncryptionKey != "" {
		raw, err := hex.DecodeString(cfg.EncryptionKey)
		if err != nil || len(raw) != 32 {
			return nil, errors.New("config: MFA_ENCRYPTION_KEY must be 32 bytes, hex-encoded")
		}
	}

	return &cfg, nil
}

// StepUpTokenTTL parses StepUpTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) StepUpTokenTTL() time.Duration {
	d, err := time.ParseDuration(c.StepUpTTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
// Used to decide if the Kafka audit sink is enabled (non-empty list).
func (c *Config) KafkaBrokersList() []string {
	return splitList(c.KafkaBrokers)
}

// WebAuthnOrigins returns the allowed relying-party origins.
func (c *Config) WebAuthnOrigins() []string {
	return splitList(c.WebAuthnRPOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
