package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string `env:"PORT"`
	LogLevel       string `env:"LOG_LEVEL"`
	DatabaseURL    string `env:"DATABASE_URL,secret"`
	RedisURL       string `env:"REDIS_URL,secret"`
	UserServiceURL string `env:"USER_SERVICE_URL"`
	JWTSecret      string `env:"JWT_SECRET,secret"`
}

// Load loads configuration from a .env file (if present) and environment variables
func Load() *Config {
	godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		UserServiceURL: getEnv("USER_SERVICE_URL", ""),
		JWTSecret:      getEnv("JWT_SECRET", ""),
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
