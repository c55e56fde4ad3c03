// internal/config/config.go
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
	Environment    string
	Log            LogConfig
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Redis          RedisConfig
	AWS            AWSConfig
	Storage        StorageConfig
	Payment        PaymentConfig
	Email          EmailConfig
	Communications CommunicationsConfig
	Workflow       WorkflowConfig
	Subscription   SubscriptionConfig
	I18n           I18nConfig
	Frontend       FrontendConfig
}

type FrontendConfig struct {
	BaseURL        string
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string // text or json
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Driver       string // postgres or memory
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey      string
	AccessTokenTTL int // in hours
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	Endpoint        string
}

type StorageConfig struct {
	LocalPath string
	Timeout   time.Duration
	MaxUpload int64 // in bytes
}

type PaymentConfig struct {
	StripeSecretKey string
	Currency        string
	Timeout         time.Duration
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

type CommunicationsConfig struct {
	Channels       []string
	SendTimeout    time.Duration
	RetryBackoff   time.Duration
	WebhookURL     string
	WebhookSecret  string
	WebhookRetries int
	StreamName     string
	StreamMaxLen   int64
}

// WorkflowConfig holds the required document kinds per application type.
type WorkflowConfig struct {
	RequiredDocuments map[string][]string
}

type SubscriptionConfig struct {
	NurseAllotment int
	CNAAllotment   int
	PriceCents     int64
}

type I18nConfig struct {
	DefaultLocale string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("STORE_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "careops"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			AccessTokenTTL: getEnvAsInt("JWT_ACCESS_TTL", 12),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "careops-documents"),
			Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
		},
		Storage: StorageConfig{
			LocalPath: getEnv("STORAGE_LOCAL_PATH", "./data/blobs"),
			Timeout:   getEnvAsDuration("STORAGE_TIMEOUT", 20*time.Second),
			MaxUpload: int64(getEnvAsInt("STORAGE_MAX_UPLOAD_MB", 20)) << 20,
		},
		Payment: PaymentConfig{
			StripeSecretKey: getEnv("STRIPE_SECRET_KEY", ""),
			Currency:        getEnv("BILLING_CURRENCY", "usd"),
			Timeout:         getEnvAsDuration("BILLING_TIMEOUT", 15*time.Second),
		},
		Email: EmailConfig{
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@careops.example"),
			FromName:     getEnv("FROM_NAME", "CareOps"),
		},
		Communications: CommunicationsConfig{
			Channels:       getEnvAsSlice("COMMUNICATION_CHANNELS", []string{"email"}),
			SendTimeout:    getEnvAsDuration("COMMUNICATION_SEND_TIMEOUT", 10*time.Second),
			RetryBackoff:   getEnvAsDuration("COMMUNICATION_RETRY_BACKOFF", 15*time.Minute),
			WebhookURL:     getEnv("WEBHOOK_URL", ""),
			WebhookSecret:  getEnv("WEBHOOK_SECRET", ""),
			WebhookRetries: getEnvAsInt("WEBHOOK_RETRIES", 2),
			StreamName:     getEnv("COMMUNICATION_STREAM", "careops:communications"),
			StreamMaxLen:   int64(getEnvAsInt("COMMUNICATION_STREAM_MAXLEN", 10000)),
		},
		Workflow: WorkflowConfig{
			RequiredDocuments: map[string][]string{
				"nurse": getEnvAsSlice("REQUIRED_DOCUMENTS_NURSE", []string{"license", "insurance", "background_check"}),
				"cna":   getEnvAsSlice("REQUIRED_DOCUMENTS_CNA", []string{"certification", "insurance", "background_check"}),
			},
		},
		Subscription: SubscriptionConfig{
			NurseAllotment: getEnvAsInt("SUBSCRIPTION_NURSE_VISITS", 1),
			CNAAllotment:   getEnvAsInt("SUBSCRIPTION_CNA_VISITS", 1),
			PriceCents:     int64(getEnvAsInt("SUBSCRIPTION_PRICE_CENTS", 0)),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
		Frontend: FrontendConfig{
			BaseURL:        getEnv("FRONTEND_URL", "http://localhost:3000"),
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Database.Driver)
	}

	if c.Database.Driver == "memory" && c.Environment == "production" {
		return fmt.Errorf("memory store is not allowed in production")
	}

	if c.Database.Password == "" && c.Database.Driver == "postgres" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	for appType, kinds := range c.Workflow.RequiredDocuments {
		if len(kinds) == 0 {
			return fmt.Errorf("no required documents configured for %s applications", appType)
		}
	}

	if c.Subscription.NurseAllotment < 0 || c.Subscription.CNAAllotment < 0 {
		return fmt.Errorf("visit allotments must not be negative")
	}

	for _, channel := range c.Communications.Channels {
		switch channel {
		case "log":
		case "email":
			if c.Email.SMTPHost == "" && c.IsProduction() {
				return fmt.Errorf("SMTP_HOST is required for the email channel in production")
			}
		case "webhook":
			if c.Communications.WebhookURL == "" {
				return fmt.Errorf("WEBHOOK_URL is required for the webhook channel")
			}
		case "stream":
			if c.Communications.StreamName == "" {
				return fmt.Errorf("COMMUNICATION_STREAM is required for the stream channel")
			}
		default:
			return fmt.Errorf("unknown communication channel %q", channel)
		}
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, strings.ToLower(part))
		}
	}
	return out
}
