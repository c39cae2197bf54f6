package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string
	SignupBonus   int64

	CatalogPath string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	SubmitRatePerMin float64
	SubmitBurst      int

	Storage   StorageConfig
	Inference InferenceConfig
	Stripe    StripeConfig
}

// StorageConfig configures the owned object store.
type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
	PresignTTLMins int
}

// InferenceConfig configures the external image model provider.
type InferenceConfig struct {
	BaseURL    string
	Token      string
	Model      string
	WebhookURL string
}

// StripeConfig configures the payment provider.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "restyle"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		AuthJWTSecret: strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		SignupBonus:   getenvInt64("SIGNUP_BONUS_CREDITS", 3),

		CatalogPath: getenv("CATALOG_PATH", ""),

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "restyle"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		SubmitRatePerMin: getenvFloat("SUBMIT_RATE_PER_MIN", 6),
		SubmitBurst:      getenvInt("SUBMIT_BURST", 3),

		Storage: StorageConfig{
			Endpoint:       getenv("STORAGE_ENDPOINT", "localhost:9000"),
			AccessKey:      getenv("STORAGE_ACCESS_KEY", ""),
			SecretKey:      getenv("STORAGE_SECRET_KEY", ""),
			Bucket:         getenv("STORAGE_BUCKET", "restyle-images"),
			UseSSL:         getenvBool("STORAGE_USE_SSL", false),
			PresignTTLMins: getenvInt("STORAGE_PRESIGN_TTL_MINS", 60),
		},
		Inference: InferenceConfig{
			BaseURL:    getenv("INFERENCE_BASE_URL", "https://api.replicate.com"),
			Token:      strings.TrimSpace(getenv("INFERENCE_TOKEN", "")),
			Model:      getenv("INFERENCE_MODEL", ""),
			WebhookURL: strings.TrimSpace(getenv("INFERENCE_WEBHOOK_URL", "")),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			SuccessURL:    getenv("STRIPE_SUCCESS_URL", "http://localhost:3000/dashboard?checkout=success"),
			CancelURL:     getenv("STRIPE_CANCEL_URL", "http://localhost:3000/dashboard?checkout=cancelled"),
			Currency:      strings.ToLower(getenv("STRIPE_CURRENCY", "usd")),
		},
	}
}

// Module provides application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}
