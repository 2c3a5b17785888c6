package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMemory   = "memory"

	HashArgon2id = "argon2id"
	HashBcrypt   = "bcrypt"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Hasher    HasherSettings    `mapstructure:"hasher"`
	GRPC      GRPCSettings      `mapstructure:"grpc"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	CORS      CORSSettings      `mapstructure:"cors"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type GRPCSettings struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	// URL takes precedence over the discrete connection fields when set.
	URL               string        `mapstructure:"url"`
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
	URL        string `mapstructure:"url"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	OTPPrefix  string `mapstructure:"otp_prefix"`
}

// KafkaSettings configures Kafka producer
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type JWTSettings struct {
	Secret       string `mapstructure:"secret"`
	KeyDirectory string `mapstructure:"key_directory"`
	KeyID        string `mapstructure:"key_id"`
	Issuer       string `mapstructure:"issuer"`
}

// AuthSettings carries the OTP and refresh-token policy. It is passed by value into every
// use case and never mutated after Load.
type AuthSettings struct {
	OTPTTL           time.Duration `mapstructure:"otp_ttl"`
	OTPMaxAttempts   int           `mapstructure:"otp_max_attempts"`
	OTPMaxResends    int           `mapstructure:"otp_max_resends"`
	OTPRetention     time.Duration `mapstructure:"otp_retention"`
	RefreshTokenDays int           `mapstructure:"refresh_token_days"`
	OTPStore         string        `mapstructure:"otp_store"`
	AccountStore     string        `mapstructure:"account_store"`
	ExposeCodes      bool          `mapstructure:"expose_codes"`

	// Registration password policy; zero disables a rule.
	PasswordMinLength  int `mapstructure:"password_min_length"`
	PasswordMinClasses int `mapstructure:"password_min_classes"`
	PasswordMinScore   int `mapstructure:"password_min_score"`

	// AdminAPIKey guards the approval endpoints; they are not mounted when empty.
	AdminAPIKey string `mapstructure:"admin_api_key"`
}

// DefaultAuthSettings returns the policy the service ships with.
func DefaultAuthSettings() AuthSettings {
	return AuthSettings{
		OTPTTL:           5 * time.Minute,
		OTPMaxAttempts:   15,
		OTPMaxResends:    10,
		OTPRetention:     24 * time.Hour,
		RefreshTokenDays: 30,
		OTPStore:         StoreRedis,
		AccountStore:     StorePostgres,

		PasswordMinLength: 1,
	}
}

// HasherSettings selects and tunes the password hashing algorithm.
type HasherSettings struct {
	Algorithm   string `mapstructure:"algorithm"`
	BcryptCost  int    `mapstructure:"bcrypt_cost"`
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type CORSSettings struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// aliases binds the environment names used by earlier deployments.
var aliases = map[string]string{
	"app.port":                "PORT",
	"jwt.secret":              "JWT_SECRET",
	"auth.refresh_token_days": "REFRESH_TOKEN_DAYS",
	"postgres.url":            "DATABASE_URL",
	"redis.url":               "REDIS_URL",
	"app.env":                 "NODE_ENV",
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
		"grpc.host",
		"grpc.port",
		"postgres.url",
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
		"redis.url",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.otp_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.secret",
		"jwt.key_directory",
		"jwt.key_id",
		"jwt.issuer",
		"auth.otp_ttl",
		"auth.otp_max_attempts",
		"auth.otp_max_resends",
		"auth.otp_retention",
		"auth.refresh_token_days",
		"auth.otp_store",
		"auth.account_store",
		"auth.expose_codes",
		"auth.password_min_length",
		"auth.password_min_classes",
		"auth.password_min_score",
		"auth.admin_api_key",
		"hasher.algorithm",
		"hasher.bcrypt_cost",
		"hasher.memory",
		"hasher.iterations",
		"hasher.parallelism",
		"hasher.salt_length",
		"hasher.key_length",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"cors.allowed_origins",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error

	if c.Auth.OTPTTL <= 0 {
		errs = append(errs, errors.New("auth.otp_ttl must be positive"))
	}
	if c.Auth.OTPMaxAttempts <= 0 {
		errs = append(errs, errors.New("auth.otp_max_attempts must be positive"))
	}
	if c.Auth.OTPMaxResends < 0 {
		errs = append(errs, errors.New("auth.otp_max_resends must not be negative"))
	}
	if c.Auth.RefreshTokenDays <= 0 {
		errs = append(errs, errors.New("auth.refresh_token_days must be positive"))
	}
	if c.Auth.PasswordMinScore < 0 || c.Auth.PasswordMinScore > 4 {
		errs = append(errs, errors.New("auth.password_min_score must be between 0 and 4"))
	}
	if c.Auth.OTPRetention < c.Auth.OTPTTL {
		errs = append(errs, errors.New("auth.otp_retention must not be shorter than auth.otp_ttl"))
	}

	switch c.Auth.OTPStore {
	case StoreRedis, StorePostgres, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("auth.otp_store: unsupported backend %q", c.Auth.OTPStore))
	}
	switch c.Auth.AccountStore {
	case StorePostgres, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("auth.account_store: unsupported backend %q", c.Auth.AccountStore))
	}

	switch c.Hasher.Algorithm {
	case HashArgon2id, HashBcrypt:
	default:
		errs = append(errs, fmt.Errorf("hasher.algorithm: unsupported algorithm %q", c.Hasher.Algorithm))
	}

	if strings.TrimSpace(c.JWT.Secret) == "" && strings.TrimSpace(c.JWT.KeyDirectory) == "" {
		errs = append(errs, errors.New("jwt.secret or jwt.key_directory is required"))
	}

	return errors.Join(errs...)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "marketplace-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 3000)

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50051)

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
	v.SetDefault("redis.otp_prefix", "auth:otp")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "auth")

	v.SetDefault("jwt.key_id", "v1")
	v.SetDefault("jwt.issuer", "marketplace-auth")

	defaults := DefaultAuthSettings()
	v.SetDefault("auth.otp_ttl", defaults.OTPTTL.String())
	v.SetDefault("auth.otp_max_attempts", defaults.OTPMaxAttempts)
	v.SetDefault("auth.otp_max_resends", defaults.OTPMaxResends)
	v.SetDefault("auth.otp_retention", defaults.OTPRetention.String())
	v.SetDefault("auth.refresh_token_days", defaults.RefreshTokenDays)
	v.SetDefault("auth.otp_store", defaults.OTPStore)
	v.SetDefault("auth.account_store", defaults.AccountStore)
	v.SetDefault("auth.expose_codes", false)
	v.SetDefault("auth.password_min_length", defaults.PasswordMinLength)
	v.SetDefault("auth.password_min_classes", defaults.PasswordMinClasses)
	v.SetDefault("auth.password_min_score", defaults.PasswordMinScore)
	v.SetDefault("auth.admin_api_key", "")

	v.SetDefault("hasher.algorithm", HashArgon2id)
	v.SetDefault("hasher.bcrypt_cost", 10)
	v.SetDefault("hasher.memory", 65536) // 64 MB
	v.SetDefault("hasher.iterations", 3)
	v.SetDefault("hasher.parallelism", 4)
	v.SetDefault("hasher.salt_length", 16)
	v.SetDefault("hasher.key_length", 32)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "marketplace-auth")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("cors.allowed_origins", []string{"*"})
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		names := []string{key, "AUTH_" + envKey, envKey}
		if alias, ok := aliases[key]; ok {
			names = append(names, alias)
		}
		if err := v.BindEnv(names...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
