package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"hostctl_backend/pkg/subscription"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Billing     BillingConfig
	Stripe      StripeConfig
	Paystack    PaystackConfig
	Redis       RedisConfig
	Vault       VaultConfig
	Email       EmailConfig
	Slack       SlackConfig
	Provisioner ProvisionerConfig
	ERP         ERPConfig
	Cron        CronConfig
}

type ServerConfig struct {
	Port string `validate:"required,numeric"`
	// AdminTokenHash is the bcrypt hash of the token accepted on admin and
	// provisioner callback routes.
	AdminTokenHash string
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DSN prefers DATABASE_URL and falls back to the discrete settings.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Password, d.DBName)
}

type JWTConfig struct {
	Secret string        `validate:"required,min=16"`
	TTL    time.Duration `validate:"gt=0"`
}

type BillingConfig struct {
	GracePeriodDays         int    `validate:"gte=0,lte=90"`
	ReminderDaysAfterExpiry int    `validate:"gte=0"`
	ClusterDomain           string `validate:"required,fqdn"`
	DefaultRegion           string `validate:"required"`
	FrontendURL             string `validate:"required,url"`
}

func (b BillingConfig) Policy() subscription.Policy {
	return subscription.Policy{
		GracePeriodDays:         b.GracePeriodDays,
		ReminderDaysAfterExpiry: b.ReminderDaysAfterExpiry,
	}
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type PaystackConfig struct {
	SecretKey string
	BaseURL   string `validate:"omitempty,url"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0,lte=15"`
}

type VaultConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

type EmailConfig struct {
	ResendAPIKey string
	From         string
}

type SlackConfig struct {
	BotToken       string
	InfoChannelID  string
	ErrorChannelID string
}

type ProvisionerConfig struct {
	URL   string `validate:"omitempty,url"`
	Token string
}

type ERPConfig struct {
	URL       string `validate:"omitempty,url"`
	APIKey    string
	APISecret string
}

type CronConfig struct {
	SubscriptionSync string `validate:"required"`
	PaymentPoll      string `validate:"required"`
	InstanceCheck    string `validate:"required"`
}

func Load() *Config {
	godotenv.Load()

	defaults := subscription.DefaultPolicy()
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "3000"),
			AdminTokenHash: getEnv("ADMIN_TOKEN_HASH", ""),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "hostctl"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			TTL:    getDuration("JWT_TTL", 24*time.Hour),
		},
		Billing: BillingConfig{
			GracePeriodDays:         getInt("GRACE_PERIOD_DAYS", defaults.GracePeriodDays),
			ReminderDaysAfterExpiry: getInt("REMINDER_DAYS_AFTER_EXPIRY", defaults.ReminderDaysAfterExpiry),
			ClusterDomain:           getEnv("CLUSTER_DOMAIN", "apps.example.com"),
			DefaultRegion:           getEnv("DEFAULT_REGION", "eu-west"),
			FrontendURL:             getEnv("FRONTEND_URL", "http://localhost:5173"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Paystack: PaystackConfig{
			SecretKey: getEnv("PAYSTACK_SECRET_KEY", ""),
			BaseURL:   getEnv("PAYSTACK_BASE_URL", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getInt("REDIS_DB", 0),
		},
		Vault: VaultConfig{
			Region:          getEnv("AWS_REGION", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("EMAIL_FROM", ""),
		},
		Slack: SlackConfig{
			BotToken:       getEnv("SLACK_BOT_TOKEN", ""),
			InfoChannelID:  getEnv("SLACK_INFO_CHANNEL", ""),
			ErrorChannelID: getEnv("SLACK_ERROR_CHANNEL", ""),
		},
		Provisioner: ProvisionerConfig{
			URL:   getEnv("PROVISIONER_URL", ""),
			Token: getEnv("PROVISIONER_TOKEN", ""),
		},
		ERP: ERPConfig{
			URL:       getEnv("ERP_URL", ""),
			APIKey:    getEnv("ERP_API_KEY", ""),
			APISecret: getEnv("ERP_API_SECRET", ""),
		},
		Cron: CronConfig{
			SubscriptionSync: getEnv("CRON_SUBSCRIPTION_SYNC", "@every 1h"),
			PaymentPoll:      getEnv("CRON_PAYMENT_POLL", "@every 5m"),
			InstanceCheck:    getEnv("CRON_INSTANCE_CHECK", "@every 2m"),
		},
	}
}

// Validate checks the loaded values against their struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
