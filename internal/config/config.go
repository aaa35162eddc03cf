package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL          string
	HTTPPort             string
	LogLevel             string
	LogFormat            string
	JWTSecret            string
	OllamaBaseURL        string
	OllamaModel          string
	OllamaTimeoutSeconds int
	OllamaNumGPU         int
	RateLimitRPM         int
	RateLimitBurst       int
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		DatabaseURL:          getEnv("DATABASE_URL", "wingman.db"),
		HTTPPort:             getEnv("HTTP_PORT", "8000"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFormat:            getEnv("LOG_FORMAT", "text"),
		JWTSecret:            getEnv("JWT_SECRET", ""),
		OllamaBaseURL:        getEnv("OLLAMA_BASE_URL", "http://127.0.0.1:11434"),
		OllamaModel:          getEnv("OLLAMA_MODEL", "llama3.2:1b"),
		OllamaTimeoutSeconds: getEnvAsInt("OLLAMA_TIMEOUT_SECONDS", 100),
		OllamaNumGPU:         getEnvAsInt("OLLAMA_NUM_GPU", 0),
		RateLimitRPM:         getEnvAsInt("RATE_LIMIT_RPM", 30),
		RateLimitBurst:       getEnvAsInt("RATE_LIMIT_BURST", 5),
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
