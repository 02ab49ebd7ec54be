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

type Config struct {
	Server       ServerConfig
	Auth         AuthConfig
	Scylla       ScyllaConfig
	Redis        RedisConfig
	Elastic      ElasticConfig
	MinIO        MinIOConfig
	Bkash        BkashConfig
	Stripe       StripeConfig
	SMTP         SMTPConfig
	Grant        GrantConfig
	Subscription SubscriptionConfig
	ToolSecret   string
}

type ServerConfig struct {
	Port            string
	BaseURL         string
	FrontendURL     string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type AuthConfig struct {
	JWTSecret          string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	SessionSecret      string
	GoogleClientID     string
	GoogleClientSecret string
}

type ScyllaConfig struct {
	Hosts            []string
	SSLEnabled       bool
	CACertPath       string
	ProductsKeyspace string
	ProductsRole     string
	ProductsPassword string
	UsersKeyspace    string
	UsersRole        string
	UsersPassword    string
	OrdersKeyspace   string
	OrdersRole       string
	OrdersPassword   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ElasticConfig struct {
	URL      string
	User     string
	Password string
	Index    string
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type BkashConfig struct {
	BaseURL     string
	AppKey      string
	AppSecret   string
	Username    string
	Password    string
	CallbackURL string
}

// Enabled reports whether enough credentials are present to talk to bKash.
func (b BkashConfig) Enabled() bool {
	return b.AppKey != "" && b.AppSecret != "" && b.Username != "" && b.Password != ""
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type GrantConfig struct {
	DefaultLimit int
	Limits       map[string]int
}

type SubscriptionConfig struct {
	SweepInterval  time.Duration
	ReminderWindow time.Duration
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using system environment variables")
	} else {
		log.Println("✅ .env file loaded")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
			FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
			AllowedOrigins:  getEnvAsSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:          os.Getenv("JWT_SECRET"),
			AccessTTL:          getEnvAsDuration("ACCESS_TOKEN_TTL", 24*time.Hour),
			RefreshTTL:         getEnvAsDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
			SessionSecret:      os.Getenv("SESSION_SECRET"),
			GoogleClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			GoogleClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		},
		Scylla: ScyllaConfig{
			Hosts:            getEnvAsSlice("SCYLLA_HOSTS", []string{"127.0.0.1"}),
			SSLEnabled:       strings.ToLower(os.Getenv("SCYLLA_SSL_ENABLED")) == "true",
			CACertPath:       os.Getenv("SCYLLA_SSL_CA_PATH"),
			ProductsKeyspace: getEnv("SCYLLA_KS_PRODUCTS_KEYSPACE", "ks_products"),
			ProductsRole:     os.Getenv("SCYLLA_KS_PRODUCTS_ROLE"),
			ProductsPassword: os.Getenv("SCYLLA_KS_PRODUCTS_PASSWORD"),
			UsersKeyspace:    getEnv("SCYLLA_KS_USERS_KEYSPACE", "ks_users"),
			UsersRole:        os.Getenv("SCYLLA_KS_USERS_ROLE"),
			UsersPassword:    os.Getenv("SCYLLA_KS_USERS_PASSWORD"),
			OrdersKeyspace:   getEnv("SCYLLA_KS_ORDERS_KEYSPACE", "ks_orders"),
			OrdersRole:       os.Getenv("SCYLLA_KS_ORDERS_ROLE"),
			OrdersPassword:   os.Getenv("SCYLLA_KS_ORDERS_PASSWORD"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_HOST", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Elastic: ElasticConfig{
			URL:      os.Getenv("ELASTIC_URL"),
			User:     os.Getenv("ELASTIC_USER"),
			Password: os.Getenv("ELASTIC_PASSWORD"),
			Index:    getEnv("ELASTIC_PRODUCTS_INDEX", "products"),
		},
		MinIO: MinIOConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getEnv("MINIO_BUCKET", "product-images"),
			UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		},
		Bkash: BkashConfig{
			BaseURL:     getEnv("BKASH_BASE_URL", "https://tokenized.sandbox.bka.sh/v1.2.0-beta"),
			AppKey:      os.Getenv("BKASH_APP_KEY"),
			AppSecret:   os.Getenv("BKASH_APP_SECRET"),
			Username:    os.Getenv("BKASH_USERNAME"),
			Password:    os.Getenv("BKASH_PASSWORD"),
			CallbackURL: getEnv("BKASH_CALLBACK_URL", "http://localhost:8080/api/payment/bkash/callback"),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:      getEnv("STRIPE_CURRENCY", "bdt"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     getEnv("SMTP_FROM", "noreply@subscription.live"),
		},
		Grant: GrantConfig{
			DefaultLimit: getEnvAsInt("GRANT_DEFAULT_LIMIT", 5),
			Limits:       ParseLimits(os.Getenv("GRANT_LIMITS")),
		},
		Subscription: SubscriptionConfig{
			SweepInterval:  getEnvAsDuration("SUBSCRIPTION_SWEEP_INTERVAL", 10*time.Minute),
			ReminderWindow: getEnvAsDuration("SUBSCRIPTION_REMINDER_WINDOW", 72*time.Hour),
		},
		ToolSecret: os.Getenv("TOOL_SECRET_KEY"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.ToolSecret == "" {
		return fmt.Errorf("TOOL_SECRET_KEY is required")
	}
	if len(c.Scylla.Hosts) == 0 {
		return fmt.Errorf("SCYLLA_HOSTS is required")
	}
	if c.Grant.DefaultLimit <= 0 {
		return fmt.Errorf("GRANT_DEFAULT_LIMIT must be positive")
	}
	if !c.Bkash.Enabled() && c.Stripe.SecretKey == "" {
		return fmt.Errorf("at least one payment gateway (bKash or Stripe) must be configured")
	}
	return nil
}

// GrantLimit returns how many users may share a tool of the given category.
func (c *Config) GrantLimit(category string) int {
	if n, ok := c.Grant.Limits[strings.ToLower(category)]; ok && n > 0 {
		return n
	}
	return c.Grant.DefaultLimit
}

// ParseLimits parses "chatgpt:5,netflix:4" into a lower-cased map. Malformed pairs are skipped.
func ParseLimits(raw string) map[string]int {
	limits := make(map[string]int)
	for _, pair := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			log.Printf("⚠️ Ignoring grant limit %q", pair)
			continue
		}
		limits[strings.ToLower(strings.TrimSpace(name))] = n
	}
	return limits
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
