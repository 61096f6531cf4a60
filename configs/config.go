package config

import (
	"os"
	"strconv"
	"time"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
}

// Dispatcher carries the retry tuning for the dispatch engine. It is passed
// into the engine constructor as an explicit struct so the retry policy can
// be unit-tested without mutating the process environment.
type Dispatcher struct {
	MaxAttempts    int
	BaseRetryDelay time.Duration
	MaxRetryDelay  time.Duration
	RetryJitter    time.Duration
	ClaimTimeout   time.Duration
	BatchLimit     int
}

type Config struct {
	FacebookAppID      string
	FacebookAppSecret  string
	GoogleClientID     string
	GoogleClientSecret string
	PostgresURI        string
	RedisURI           string
	FrontendURL        string
	R2                 R2
	SecretKey          string
	CookieName         string
	Dispatcher         Dispatcher
}

func LoadConfig() *Config {
	return &Config{
		FacebookAppID:      getEnv("FB_APP_ID", ""),
		FacebookAppSecret:  getEnv("FB_APP_SECRET", ""),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		PostgresURI:        getEnv("POSTGRES_URI", ""),
		RedisURI:           getEnv("REDIS_URI", ""),
		FrontendURL:        getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
		},
		SecretKey:  getEnv("SECRET_KEY", ""),
		CookieName: getEnv("COOKIE_NAME", "postpilot_session"),
		Dispatcher: Dispatcher{
			MaxAttempts:    getEnvInt("MAX_ATTEMPTS", 3),
			BaseRetryDelay: getEnvMillis("BASE_RETRY_DELAY_MS", 5*time.Minute),
			MaxRetryDelay:  getEnvMillis("MAX_RETRY_DELAY_MS", 60*time.Minute),
			RetryJitter:    getEnvMillis("RETRY_JITTER_MS", time.Minute),
			ClaimTimeout:   getEnvSeconds("CLAIM_TIMEOUT_SECONDS", 15*time.Minute),
			BatchLimit:     getEnvInt("DISPATCH_BATCH_LIMIT", 500),
		},
	}
}

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
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return time.Duration(n) * time.Millisecond
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return time.Duration(n) * time.Second
}
