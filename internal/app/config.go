package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr       string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string
	Environment    string

	TraceEndpoint    string
	TraceSampleRatio float64

	DatabaseURL string
	RedisURL    string

	IGDBClientID     string
	IGDBClientSecret string
	IGDBBaseURL      string
	IGDBTokenURL     string
	IGDBRPS          float64
	IGDBPageSize     int

	// Search policy knobs. These encode cost/completeness heuristics, so each
	// one is overridable rather than baked in.
	MinCachedResults   int
	CompletenessRatio  float64
	CompletenessFloor  int
	FranchiseStaleDays int
	LockTTL            time.Duration
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:       getEnv("HTTP_ADDR", ":8085"),
		RequestTimeout: time.Duration(getEnvInt("SEARCH_TIMEOUT_SECONDS", 15)) * time.Second,
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getEnv("LOG_FORMAT", "text")),
		Environment:    strings.ToLower(getEnv("SERVICE_ENVIRONMENT", "production")),

		TraceEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRatio: getEnvFloat("TRACE_SAMPLE_RATIO", 1),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		IGDBClientID:     strings.TrimSpace(os.Getenv("IGDB_CLIENT_ID")),
		IGDBClientSecret: strings.TrimSpace(os.Getenv("IGDB_CLIENT_SECRET")),
		IGDBBaseURL:      getEnv("IGDB_BASE_URL", "https://api.igdb.com/v4"),
		IGDBTokenURL:     getEnv("IGDB_TOKEN_URL", "https://id.twitch.tv/oauth2/token"),
		IGDBRPS:          getEnvFloat("IGDB_REQUESTS_PER_SECOND", 4),
		IGDBPageSize:     getEnvInt("IGDB_PAGE_SIZE", 500),

		MinCachedResults:   getEnvInt("SEARCH_MIN_CACHED_RESULTS", 5),
		CompletenessRatio:  getEnvFloat("SEARCH_COMPLETENESS_RATIO", 0.80),
		CompletenessFloor:  getEnvInt("SEARCH_COMPLETENESS_FLOOR", 5),
		FranchiseStaleDays: getEnvInt("SEARCH_FRANCHISE_STALE_DAYS", 7),
		LockTTL:            time.Duration(getEnvInt("SEARCH_LOCK_TTL_SECONDS", 30)) * time.Second,
	}
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
