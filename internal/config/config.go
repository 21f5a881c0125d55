package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Auth      AuthConfig
	Email     EmailConfig
	Messaging MessagingConfig
	Threat    ThreatConfig
	OTP       OTPConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	MasterKey          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	CleanupInterval    time.Duration
	// Failed logins are padded to roughly BaseDelay plus up to RandomDelay.
	TimingBaseDelay    time.Duration
	TimingRandomDelay  time.Duration
}

type EmailConfig struct {
	Provider     string // ses, smtp or log
	From         string
	SESRegion    string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
}

type MessagingConfig struct {
	EncryptionKey    string
	MaxAttachmentMB  int
	SendBufferLength int
}

// ThreatConfig tunes the login threat evaluator.
type ThreatConfig struct {
	Window            time.Duration
	MaxFailed         int
	MaxRapid          int
	RapidWindow       time.Duration
	SuspiciousIPCount int
	AutoUnblock       time.Duration
	AttemptRetention  time.Duration
}

// OTPConfig controls one-time codes. Secret keys the stored code hashes.
type OTPConfig struct {
	Expiry      time.Duration
	Secret      string
	MaxAttempts int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "agora"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:          getEnv("JWT_SECRET", ""),
			MasterKey:          getEnv("MASTER_KEY", ""),
			AccessTokenExpiry:  getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry: getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			TimingBaseDelay:    getEnvAsDuration("AUTH_TIMING_BASE_DELAY", 300*time.Millisecond),
			TimingRandomDelay:  getEnvAsDuration("AUTH_TIMING_RANDOM_DELAY", 100*time.Millisecond),
		},
		Email: EmailConfig{
			Provider:     strings.ToLower(getEnv("EMAIL_PROVIDER", "log")),
			From:         getEnv("EMAIL_FROM", "no-reply@agora.local"),
			SESRegion:    getEnv("AWS_REGION", "us-east-1"),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		},
		Messaging: MessagingConfig{
			EncryptionKey:    getEnv("MESSAGE_ENCRYPTION_KEY", ""),
			MaxAttachmentMB:  getEnvAsInt("MAX_ATTACHMENT_MB", 10),
			SendBufferLength: getEnvAsInt("WS_SEND_BUFFER", 256),
		},
		Threat: ThreatConfig{
			Window:            getEnvAsDuration("THREAT_WINDOW", 24*time.Hour),
			MaxFailed:         getEnvAsInt("THREAT_MAX_FAILED", 5),
			MaxRapid:          getEnvAsInt("THREAT_MAX_RAPID", 10),
			RapidWindow:       getEnvAsDuration("THREAT_RAPID_WINDOW", 60*time.Second),
			SuspiciousIPCount: getEnvAsInt("THREAT_SUSPICIOUS_IP_COUNT", 3),
			AutoUnblock:       getEnvAsDuration("THREAT_AUTO_UNBLOCK", 24*time.Hour),
			AttemptRetention:  getEnvAsDuration("LOGIN_ATTEMPT_RETENTION", 30*24*time.Hour),
		},
		OTP: OTPConfig{
			Expiry:      getEnvAsDuration("OTP_EXPIRY", 10*time.Minute),
			Secret:      getEnv("OTP_SECRET", ""),
			MaxAttempts: getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if err := validateSecret("JWT_SECRET", c.Auth.JWTSecret, c.Server.Env); err != nil {
		return err
	}
	if c.Messaging.EncryptionKey == "" {
		return fmt.Errorf("MESSAGE_ENCRYPTION_KEY is required")
	}
	if len(c.Messaging.EncryptionKey) < 32 {
		return fmt.Errorf("MESSAGE_ENCRYPTION_KEY must be at least 32 characters")
	}
	if c.OTP.Secret == "" {
		return fmt.Errorf("OTP_SECRET is required")
	}
	if err := validateSecret("OTP_SECRET", c.OTP.Secret, c.Server.Env); err != nil {
		return err
	}
	if c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	}
	if c.Auth.MasterKey != "" {
		if err := validateSecret("MASTER_KEY", c.Auth.MasterKey, c.Server.Env); err != nil {
			return err
		}
	}

	switch c.Email.Provider {
	case "log", "ses":
	case "smtp":
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER=smtp")
		}
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", c.Email.Provider)
	}

	if c.Threat.MaxFailed < 1 || c.Threat.MaxRapid < 1 || c.Threat.SuspiciousIPCount < 1 {
		return fmt.Errorf("threat thresholds must be positive")
	}
	return nil
}

// validateSecret enforces minimum strength for signing and admin secrets.
func validateSecret(name, secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}
	lower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if lower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}
	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if origins := getEnvAsList("ALLOWED_ORIGINS"); origins != nil {
		return origins
	}
	if env == "production" {
		return []string{}
	}
	return []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
