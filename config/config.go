package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	DatabaseURL        string
	Port               string
	GoEnv              string
	Auth0Domain        string
	Auth0Audience      string
	AdminScope         string
	AWSRegion          string
	AWSS3Bucket        string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	UploadDir          string // local photo storage when no bucket is configured
	LogLevel           string
	CORSOrigins        []string

	// Outbound email
	MailDriver   string // smtp, http, log or none
	MailFrom     string
	AdminEmail   string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailAPIURL   string
	MailAPIKey   string
	MailTimeout  time.Duration

	// Change feed
	ChangefeedDriver string // memory, amqp or kafka
	ChangefeedBuffer int
	AMQPURL          string
	AMQPExchange     string
	AMQPQueue        string
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaGroupID     string

	// Payment provider callback
	PaymentWebhookSecret string

	// Tracing
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string
}

// Load loads the configuration from environment variables
// It automatically determines which .env file to load based on GO_ENV
func Load() (*Config, error) {
	// Determine which environment file to load
	env := os.Getenv("GO_ENV")
	if env == "" {
		env = "development"
	}

	// Try to load environment-specific file first
	envFile := fmt.Sprintf(".env.%s", env)
	if err := godotenv.Load(envFile); err != nil {
		// If environment-specific file doesn't exist, try .env
		if err := godotenv.Load(); err != nil {
			// In production environment variables are set directly
			log.Printf("No .env file found, using system environment variables")
		}
	} else {
		log.Printf("Loaded configuration from %s", envFile)
	}

	config := FromEnv()

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// FromEnv builds a Config from the current process environment without loading any file
func FromEnv() *Config {
	return &Config{
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		Port:               getEnv("PORT", "8080"),
		GoEnv:              getEnv("GO_ENV", "development"),
		Auth0Domain:        getEnv("AUTH0_DOMAIN", ""),
		Auth0Audience:      getEnv("AUTH0_AUDIENCE", ""),
		AdminScope:         getEnv("ADMIN_SCOPE", "admin:orders"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSS3Bucket:        getEnv("AWS_S3_BUCKET", ""),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		UploadDir:          getEnv("UPLOAD_DIR", "./uploads"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSOrigins:        getEnvList("CORS_ORIGINS", []string{"http://localhost:3000"}),

		MailDriver:   getEnv("MAIL_DRIVER", "log"),
		MailFrom:     getEnv("MAIL_FROM", "repairs@localhost"),
		AdminEmail:   getEnv("ADMIN_EMAIL", ""),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		MailAPIURL:   getEnv("MAIL_API_URL", ""),
		MailAPIKey:   getEnv("MAIL_API_KEY", ""),
		MailTimeout:  getEnvDuration("MAIL_TIMEOUT", 10*time.Second),

		ChangefeedDriver: getEnv("CHANGEFEED_DRIVER", "memory"),
		ChangefeedBuffer: getEnvInt("CHANGEFEED_BUFFER", 256),
		AMQPURL:          getEnv("AMQP_URL", ""),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", "order_changes"),
		AMQPQueue:        getEnv("AMQP_QUEUE", ""),
		KafkaBrokers:     getEnvList("KAFKA_BROKERS", nil),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "order-changes"),
		KafkaGroupID:     getEnv("KAFKA_GROUP_ID", "jersey-repair-api"),

		PaymentWebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),

		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: getEnv("OTEL_EXPORTER_OTLP_INSECURE", "") == "true",
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "jersey-repair-api"),
	}
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.MailDriver {
	case "smtp":
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when MAIL_DRIVER=smtp")
		}
	case "http":
		if c.MailAPIURL == "" {
			return fmt.Errorf("MAIL_API_URL is required when MAIL_DRIVER=http")
		}
	case "log", "none", "":
	default:
		return fmt.Errorf("unknown MAIL_DRIVER %q", c.MailDriver)
	}
	switch c.ChangefeedDriver {
	case "amqp":
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when CHANGEFEED_DRIVER=amqp")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("KAFKA_BROKERS is required when CHANGEFEED_DRIVER=kafka")
		}
	case "memory", "":
	default:
		return fmt.Errorf("unknown CHANGEFEED_DRIVER %q", c.ChangefeedDriver)
	}
	if c.IsProduction() && c.PaymentWebhookSecret == "" {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required in production")
	}
	return nil
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GoEnv == "production"
}

// IsTest returns true if the application is running in test mode
func (c *Config) IsTest() bool {
	return c.GoEnv == "test"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer for %s: %q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid duration for %s: %q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
