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
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	SaleTxTimeout         time.Duration
	StatsCacheTTL         time.Duration
	LowStockThreshold     int
	ExpiryWarningDays     int
	AlertSchedule         string
	LogLevel              string
	LogMode               string
	LogFile               string
}

// Load reads the process environment. A .env file in the working directory is
// applied first when present; variables already set take precedence.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:                  getEnv("PORT", "5000"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://localhost:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveInt("ACCESS_TOKEN_TTL_MINUTES", 7*24*60),
		SaleTxTimeout:         time.Duration(positiveInt("SALE_TX_TIMEOUT_SECONDS", 5)) * time.Second,
		StatsCacheTTL:         time.Duration(positiveInt("STATS_CACHE_TTL_SECONDS", 30)) * time.Second,
		LowStockThreshold:     positiveInt("LOW_STOCK_THRESHOLD", 150),
		ExpiryWarningDays:     positiveInt("EXPIRY_WARNING_DAYS", 60),
		AlertSchedule:         getEnv("ALERT_SCHEDULE", "@hourly"),
		LogLevel:              strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogMode:               strings.ToLower(getEnv("LOG_MODE", "development")),
		LogFile:               strings.TrimSpace(os.Getenv("LOG_FILE")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func positiveInt(key string, fallback int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
