package config

import (
	"os"
	"strconv"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port          string
	LogMode       string
	AppID         string
	PostgresDSN   string
	MongoURI      string
	MongoDB       string
	RedisAddr     string
	RedisPassword string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	GenAIBaseURL string
	GenAIAPIKey  string
	TextModel    string
	ImageModel   string

	// MaxAICalls caps concurrent upstream generation calls across the
	// whole process.
	MaxAICalls int64
	// RatePerMinute / RateBurst bound per-IP requests on generation routes.
	RatePerMinute int
	RateBurst     int

	AllowedOrigins []string
}

func Load() *Config {
	return &Config{
		Port:          getenv("PORT", "8080"),
		LogMode:       getenv("LOG_MODE", "dev"),
		AppID:         getenv("APP_ID", "study-spark-ai-default"),
		PostgresDSN:   getenv("POSTGRES_DSN", ""),
		MongoURI:      getenv("MONGO_URI", ""),
		MongoDB:       getenv("MONGO_DB", "studyspark"),
		RedisAddr:     getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		MinioEndpoint:  getenv("MINIO_ENDPOINT", "minio:9000"),
		MinioAccessKey: getenv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getenv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getenv("MINIO_BUCKET", "studyspark-mindmaps"),
		MinioUseSSL:    getenv("MINIO_USE_SSL", "false") == "true",

		GenAIBaseURL: getenv("GENAI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GenAIAPIKey:  getenv("GOOGLE_AI_API_KEY", ""),
		TextModel:    getenv("GENAI_TEXT_MODEL", "gemini-2.0-flash"),
		ImageModel:   getenv("GENAI_IMAGE_MODEL", "imagen-3.0-generate-002"),

		MaxAICalls:    int64(getenvInt("MAX_AI_CALLS", 8)),
		RatePerMinute: getenvInt("RATE_PER_MINUTE", 30),
		RateBurst:     getenvInt("RATE_BURST", 10),

		AllowedOrigins: []string{
			getenv("FRONTEND_ORIGIN", "http://localhost:5173"),
			"http://localhost:3000",
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
