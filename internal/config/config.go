package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
)

// Config centralizes runtime settings for the API and the reportctl tool.
type Config struct {
	Port string

	LogLevel       string
	LogDevelopment bool

	AIProvider         string
	AIMaxContentLength int
	AIMaxConcurrent    int
	AIQueueTimeout     time.Duration
	AIQueueMaxSize     int
	AICacheTTL         time.Duration
	AICacheMaxEntries  int

	BedrockRegion string
	AWSRegion     string
	BedrockModel  string

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAITimeoutMS int

	GeminiAPIKey string
	GeminiModel  string

	AuthDevAllow  bool
	AuthTestToken string
	JWTJWKSURL    string
	JWTIssuer     string
	JWTAudience   string
	JWTHMACSecret string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	StatsTimezone string
}

func Load() Config {
	return Config{
		Port: getEnv("PORT", "8080"),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogDevelopment: getEnvBool("LOG_DEVELOPMENT", false),

		AIProvider:         strings.ToLower(getEnv("AI_PROVIDER", ProviderBedrock)),
		AIMaxContentLength: getEnvInt("AI_MAX_CONTENT_LENGTH", 5000),
		AIMaxConcurrent:    getEnvInt("AI_MAX_CONCURRENT", 5),
		AIQueueTimeout:     getEnvMillis("AI_QUEUE_TIMEOUT", 45*time.Second),
		AIQueueMaxSize:     getEnvInt("AI_QUEUE_MAX_SIZE", 150),
		AICacheTTL:         time.Duration(getEnvInt("AI_CACHE_TTL_SECONDS", 900)) * time.Second,
		AICacheMaxEntries:  getEnvInt("AI_CACHE_MAX_ENTRIES", 2000),

		BedrockRegion: getEnv("BEDROCK_REGION", ""),
		AWSRegion:     getEnv("AWS_REGION", ""),
		BedrockModel:  getEnv("BEDROCK_MODEL", "anthropic.claude-instant-v1"),

		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITimeoutMS: getEnvInt("OPENAI_TIMEOUT_MS", 30000),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		AuthDevAllow:  getEnvBool("AUTH_DEV_ALLOW", false),
		AuthTestToken: getEnv("AUTH_TEST_TOKEN", "test-token"),
		JWTJWKSURL:    getEnv("JWT_JWKS_URL", ""),
		JWTIssuer:     getEnv("JWT_ISSUER", ""),
		JWTAudience:   getEnv("JWT_AUDIENCE", ""),
		JWTHMACSecret: getEnv("JWT_HMAC_SECRET", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),

		StatsTimezone: getEnv("STATS_TIMEZONE", "Asia/Tokyo"),
	}
}

// BedrockRegionOrDefault prefers BEDROCK_REGION, then AWS_REGION.
func (c Config) BedrockRegionOrDefault() string {
	if c.BedrockRegion != "" {
		return c.BedrockRegion
	}
	return c.AWSRegion
}

// Validate reports settings that cannot work. Provider credentials are not
// checked here; a missing key is reported per request.
func (c Config) Validate() error {
	var problems []error
	if c.AIMaxContentLength <= 0 {
		problems = append(problems, fmt.Errorf("AI_MAX_CONTENT_LENGTH must be positive, got %d", c.AIMaxContentLength))
	}
	if c.AIMaxConcurrent <= 0 {
		problems = append(problems, fmt.Errorf("AI_MAX_CONCURRENT must be positive, got %d", c.AIMaxConcurrent))
	}
	if c.AIQueueMaxSize <= 0 {
		problems = append(problems, fmt.Errorf("AI_QUEUE_MAX_SIZE must be positive, got %d", c.AIQueueMaxSize))
	}
	if c.AIQueueTimeout <= 0 {
		problems = append(problems, fmt.Errorf("AI_QUEUE_TIMEOUT must be positive, got %s", c.AIQueueTimeout))
	}
	if _, err := time.LoadLocation(c.StatsTimezone); err != nil {
		problems = append(problems, fmt.Errorf("STATS_TIMEZONE: %w", err))
	}
	return errors.Join(problems...)
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	parsed, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvMillis reads an integer number of milliseconds.
func getEnvMillis(key string, fallback time.Duration) time.Duration {
	parsed, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

func getEnvFloat(key string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
