// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SMS providers.
const (
	SMSProviderSMSCannon = "smscannon"
	SMSProviderTwilio    = "twilio"
	SMSProviderDev       = "dev"
)

// OTP stores.
const (
	OTPStoreMemory   = "memory"
	OTPStoreRedis    = "redis"
	OTPStorePostgres = "postgres"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address of the JSON API (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health server (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// AppSecret seeds the form token signing key. At least 16 bytes.
	AppSecret string `mapstructure:"APP_SECRET"`
	// CORSAllowedOrigins is a comma-separated origin list; "*" allows any.
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	// SMSProvider selects the OTP dispatcher: smscannon, twilio or dev. dev is refused in production.
	SMSProvider   string `mapstructure:"SMS_PROVIDER"`
	SMSAPIKey     string `mapstructure:"SMS_API_KEY"`
	SMSSenderID   string `mapstructure:"SMS_SENDER_ID"`
	SMSTemplateID string `mapstructure:"SMS_TEMPLATE_ID"`
	SMSBaseURL    string `mapstructure:"SMS_BASE_URL"`

	TwilioAccountSID string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioFromPhone  string `mapstructure:"TWILIO_FROM_PHONE"`

	// OTPExpiryMinutes is the validity window of a code.
	OTPExpiryMinutes int `mapstructure:"OTP_EXPIRY_MINUTES"`
	// OTPVerifyDelay is the latency of a verification check; 0 disables it.
	OTPVerifyDelay time.Duration `mapstructure:"OTP_VERIFY_DELAY"`
	// OTPStore selects where codes are kept: memory, redis or postgres.
	OTPStore      string `mapstructure:"OTP_STORE"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// DatabaseURL is the Postgres DSN for the postgres store and cmd/migrate.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// FormSessionTTL is how long an untouched form session lives.
	FormSessionTTL time.Duration `mapstructure:"FORM_SESSION_TTL"`
	// FormSweepSchedule is the cron spec of the idle-form sweeper.
	FormSweepSchedule string `mapstructure:"FORM_SWEEP_SCHEDULE"`

	// BookingKafkaBrokers is a comma-separated broker list. Empty means bookings are only logged.
	BookingKafkaBrokers string `mapstructure:"BOOKING_KAFKA_BROKERS"`
	BookingKafkaTopic   string `mapstructure:"BOOKING_KAFKA_TOPIC"`
	// Worker-only: consumer group and Loki URL.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	LokiURL      string `mapstructure:"LOKI_URL"`

	// SendGrid confirmation mail (optional).
	SendGridAPIKey    string `mapstructure:"SENDGRID_API_KEY"`
	SendGridFromEmail string `mapstructure:"SENDGRID_FROM_EMAIL"`
	SendGridFromName  string `mapstructure:"SENDGRID_FROM_NAME"`

	// BookingPolicyPath is an optional .rego file or directory of operator rules.
	BookingPolicyPath string `mapstructure:"BOOKING_POLICY_PATH"`
	// ClinicClosedWeekdays is a comma-separated weekday list (e.g. "sunday").
	ClinicClosedWeekdays string `mapstructure:"CLINIC_CLOSED_WEEKDAYS"`
	ClinicTimezone       string `mapstructure:"CLINIC_TIMEZONE"`

	// OTLP collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
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
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("APP_SECRET", "")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("SMS_PROVIDER", SMSProviderSMSCannon)
	v.SetDefault("SMS_API_KEY", "")
	v.SetDefault("SMS_SENDER_ID", "")
	v.SetDefault("SMS_TEMPLATE_ID", "")
	v.SetDefault("SMS_BASE_URL", "https://smscannon.com/api/api.php")
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_FROM_PHONE", "")
	v.SetDefault("OTP_EXPIRY_MINUTES", 5)
	v.SetDefault("OTP_VERIFY_DELAY", "1s")
	v.SetDefault("OTP_STORE", OTPStoreMemory)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("FORM_SESSION_TTL", "30m")
	v.SetDefault("FORM_SWEEP_SCHEDULE", "@every 1m")
	v.SetDefault("BOOKING_KAFKA_BROKERS", "")
	v.SetDefault("BOOKING_KAFKA_TOPIC", "booking-requests")
	v.SetDefault("KAFKA_GROUP_ID", "booking-loki-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("SENDGRID_FROM_EMAIL", "")
	v.SetDefault("SENDGRID_FROM_NAME", "Clinic Bookings")
	v.SetDefault("BOOKING_POLICY_PATH", "")
	v.SetDefault("CLINIC_CLOSED_WEEKDAYS", "sunday")
	v.SetDefault("CLINIC_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.SMSProvider = strings.ToLower(strings.TrimSpace(cfg.SMSProvider))
	cfg.OTPStore = strings.ToLower(strings.TrimSpace(cfg.OTPStore))

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if len(c.AppSecret) < 16 {
		return errors.New("config: APP_SECRET must be at least 16 characters")
	}
	switch c.SMSProvider {
	case SMSProviderSMSCannon, SMSProviderTwilio:
	case SMSProviderDev:
		if c.IsProduction() {
			return errors.New("config: SMS_PROVIDER=dev must not be used when APP_ENV=production")
		}
	default:
		return errors.New("config: SMS_PROVIDER must be one of smscannon, twilio, dev")
	}
	if c.OTPExpiryMinutes <= 0 {
		return errors.New("config: OTP_EXPIRY_MINUTES must be positive")
	}
	if c.OTPVerifyDelay < 0 {
		return errors.New("config: OTP_VERIFY_DELAY must not be negative")
	}
	switch c.OTPStore {
	case OTPStoreMemory:
	case OTPStoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: OTP_STORE=redis requires REDIS_ADDR")
		}
	case OTPStorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: OTP_STORE=postgres requires DATABASE_URL")
		}
	default:
		return errors.New("config: OTP_STORE must be one of memory, redis, postgres")
	}
	if c.FormSessionTTL <= 0 {
		return errors.New("config: FORM_SESSION_TTL must be positive")
	}
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		return errors.New("config: CLINIC_TIMEZONE is not a valid IANA zone")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// ClinicLocation returns the clinic timezone. Load has validated it.
func (c *Config) ClinicLocation() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// VerifyDelay maps OTP_VERIFY_DELAY to the OTP service option, where a negative value means no delay.
func (c *Config) VerifyDelay() time.Duration {
	if c.OTPVerifyDelay == 0 {
		return -1
	}
	return c.OTPVerifyDelay
}

// BookingKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) BookingKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.BookingKafkaBrokers)
}

// AllowedOrigins returns the CORS origins.
func (c *Config) AllowedOrigins() []string {
	return splitList(c.CORSAllowedOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
