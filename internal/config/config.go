package config

import (
	"os"
	"strconv"
	"time"
)

// Config represents application configuration.
type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Generation GenerationConfig
	ImageGen   ImageGenConfig
	Billing    BillingConfig
	Payout     PayoutConfig
	Telegram   TelegramConfig
	Env        string
}

type ServerConfig struct {
	Port string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// GenerationConfig throttles dispatch against the image provider's
// concurrency ceiling.
type GenerationConfig struct {
	ChunkSize   int
	ChunkDelay  time.Duration // between chunks
	TaskDelay   time.Duration // between submits within a chunk
	MaxAttempts int           // per-task submit retries
	PollAfter   time.Duration // dispatched tasks older than this get polled
	JobTimeout  time.Duration // processing jobs older than this get failed
}

type ImageGenConfig struct {
	BaseURL     string
	APIKey      string
	CallbackURL string // our /webhooks/generation endpoint
}

type BillingConfig struct {
	BaseURL      string
	APIKey       string
	SecretKey    string
	ProviderName string
}

type PayoutConfig struct {
	BaseURL   string
	APIKey    string
	SecretKey string // signs payout webhooks
}

type TelegramConfig struct {
	BotToken string
}

// Provide loads configuration from environment variables with defaults.
func Provide() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Generation: GenerationConfig{
			ChunkSize:   getInt("GENERATION_CHUNK_SIZE", 5),
			ChunkDelay:  getDuration("GENERATION_CHUNK_DELAY", 30*time.Second),
			TaskDelay:   getDuration("GENERATION_TASK_DELAY", 2*time.Second),
			MaxAttempts: getInt("GENERATION_MAX_ATTEMPTS", 3),
			PollAfter:   getDuration("GENERATION_POLL_AFTER", 2*time.Minute),
			JobTimeout:  getDuration("GENERATION_JOB_TIMEOUT", 2*time.Hour),
		},
		ImageGen: ImageGenConfig{
			BaseURL:     getEnv("IMAGEGEN_BASE_URL", "https://api.imagegen.example/v1"),
			APIKey:      os.Getenv("IMAGEGEN_API_KEY"),
			CallbackURL: os.Getenv("IMAGEGEN_CALLBACK_URL"),
		},
		Billing: BillingConfig{
			BaseURL:      getEnv("BILLING_BASE_URL", "https://api.billing.example"),
			APIKey:       os.Getenv("BILLING_API_KEY"),
			SecretKey:    os.Getenv("BILLING_SECRET_KEY"),
			ProviderName: getEnv("BILLING_PROVIDER", "billing"),
		},
		Payout: PayoutConfig{
			BaseURL:   getEnv("PAYOUT_BASE_URL", "https://api.payout.example"),
			APIKey:    os.Getenv("PAYOUT_API_KEY"),
			SecretKey: os.Getenv("PAYOUT_SECRET_KEY"),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		},
		Env: getEnv("APP_ENV", "local"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
