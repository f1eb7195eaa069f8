package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"pumpdesk/backend/internal/domain"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	CheckpointsFile       string
	RateCacheTTLSeconds   int
	FallbackRates         domain.RateTable
	AuthSecret            string
	AccessTokenTTLMinutes int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	rateTTL, err := strconv.Atoi(getEnv("RATE_CACHE_TTL_SECONDS", "30"))
	if err != nil || rateTTL < 1 {
		rateTTL = 30
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		CheckpointsFile:       strings.TrimSpace(os.Getenv("CHECKPOINTS_FILE")),
		RateCacheTTLSeconds:   rateTTL,
		FallbackRates:         parseFallbackRates(os.Getenv("FALLBACK_RATES")),
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// parseFallbackRates reads "MS=95.50,HSD=87.30" style pairs into a paise
// table. Malformed pairs are skipped; a nil table means the service's
// built-in defaults apply.
func parseFallbackRates(raw string) domain.RateTable {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	rates := domain.RateTable{}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		fuel, err := domain.ParseFuelType(key)
		if err != nil {
			continue
		}
		paise := domain.ParseAmountOrZero(value)
		if paise <= 0 {
			continue
		}
		rates[fuel] = paise
	}
	if len(rates) == 0 {
		return nil
	}
	return rates
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
