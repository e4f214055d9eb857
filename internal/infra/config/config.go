package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	SMTP      SMTPSettings      `mapstructure:"smtp"`
	Social    SocialSettings    `mapstructure:"social"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	OTP       OTPSettings       `mapstructure:"otp"`
	Lockout   LockoutSettings   `mapstructure:"lockout"`
	Reset     ResetSettings     `mapstructure:"reset"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
}

type AppSettings struct {
	Name           string   `mapstructure:"name"`
	Env            string   `mapstructure:"env"`
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
	QuotaPrefix     string `mapstructure:"quota_prefix"`
}

// KafkaSettings configures the Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type JWTSettings struct {
	Secret          string        `mapstructure:"secret"`
	Issuer          string        `mapstructure:"issuer"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// SMTPSettings configures the outbound mail gateway
type SMTPSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	TLS      bool   `mapstructure:"tls"`
}

// SocialSettings configures third-party identity providers
type SocialSettings struct {
	GoogleClientID    string `mapstructure:"google_client_id"`
	FacebookAppID     string `mapstructure:"facebook_app_id"`
	FacebookAppSecret string `mapstructure:"facebook_app_secret"`
}

type TelemetrySettings struct {
	MetricsEnabled bool    `mapstructure:"metrics_enabled"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	ServiceName    string  `mapstructure:"service_name"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// RateLimitSettings configures sliding-window limits and resend quotas per endpoint
type RateLimitSettings struct {
	RegisterWindow      time.Duration `mapstructure:"register_window"`
	RegisterMaxAttempts int           `mapstructure:"register_max_attempts"`
	VerifyWindow        time.Duration `mapstructure:"verify_window"`
	VerifyMaxAttempts   int           `mapstructure:"verify_max_attempts"`
	LoginWindow         time.Duration `mapstructure:"login_window"`
	LoginMaxAttempts    int           `mapstructure:"login_max_attempts"`
	ForgotWindow        time.Duration `mapstructure:"forgot_window"`
	ForgotMaxAttempts   int           `mapstructure:"forgot_max_attempts"`
	ResendCooldown      time.Duration `mapstructure:"resend_cooldown"`
	ResendDailyMax      int           `mapstructure:"resend_daily_max"`
}

// OTPSettings configures one-time passcode issuance
type OTPSettings struct {
	Length      int           `mapstructure:"length"`
	TTL         time.Duration `mapstructure:"ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// LockoutSettings configures the failed-login lockout policy
type LockoutSettings struct {
	MaxFailedLogins int `mapstructure:"max_failed_logins"`
}

// ResetSettings configures password recovery tokens
type ResetSettings struct {
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	BaseURL  string        `mapstructure:"base_url"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTH")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.allowed_origins",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.rate_limit_prefix",
		"redis.quota_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.secret",
		"jwt.issuer",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"smtp.host",
		"smtp.port",
		"smtp.username",
		"smtp.password",
		"smtp.from",
		"smtp.tls",
		"social.google_client_id",
		"social.facebook_app_id",
		"social.facebook_app_secret",
		"telemetry.metrics_enabled",
		"telemetry.tracing_enabled",
		"telemetry.service_name",
		"telemetry.otlp_endpoint",
		"telemetry.sampling_rate",
		"rate_limit.register_window",
		"rate_limit.register_max_attempts",
		"rate_limit.verify_window",
		"rate_limit.verify_max_attempts",
		"rate_limit.login_window",
		"rate_limit.login_max_attempts",
		"rate_limit.forgot_window",
		"rate_limit.forgot_max_attempts",
		"rate_limit.resend_cooldown",
		"rate_limit.resend_daily_max",
		"otp.length",
		"otp.ttl",
		"otp.max_attempts",
		"lockout.max_failed_logins",
		"reset.token_ttl",
		"reset.base_url",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "identity-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.allowed_origins", []string{})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "auth")
	v.SetDefault("postgres.password", "auth_password")
	v.SetDefault("postgres.database", "auth")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.rate_limit_prefix", "auth:ratelimit")
	v.SetDefault("redis.quota_prefix", "auth:quota")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "auth")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "identity-service")
	v.SetDefault("jwt.access_token_ttl", "1h")
	v.SetDefault("jwt.refresh_token_ttl", "168h")

	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "no-reply@courtbook.example")
	v.SetDefault("smtp.tls", true)

	v.SetDefault("social.google_client_id", "")
	v.SetDefault("social.facebook_app_id", "")
	v.SetDefault("social.facebook_app_secret", "")

	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.service_name", "identity-service")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.sampling_rate", 0.1)

	v.SetDefault("rate_limit.register_window", "15m")
	v.SetDefault("rate_limit.register_max_attempts", 5)
	v.SetDefault("rate_limit.verify_window", "5m")
	v.SetDefault("rate_limit.verify_max_attempts", 10)
	v.SetDefault("rate_limit.login_window", "15m")
	v.SetDefault("rate_limit.login_max_attempts", 10)
	v.SetDefault("rate_limit.forgot_window", "15m")
	v.SetDefault("rate_limit.forgot_max_attempts", 5)
	v.SetDefault("rate_limit.resend_cooldown", "60s")
	v.SetDefault("rate_limit.resend_daily_max", 5)

	v.SetDefault("otp.length", 6)
	v.SetDefault("otp.ttl", "10m")
	v.SetDefault("otp.max_attempts", 5)

	v.SetDefault("lockout.max_failed_logins", 5)

	v.SetDefault("reset.token_ttl", "1h")
	v.SetDefault("reset.base_url", "https://courtbook.example/reset-password")

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTH_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
