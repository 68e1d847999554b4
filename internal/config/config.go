package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"

	"bone_chat/internal/utils/log"
)

type (
	Config struct {
		ListenAddr string
		RelayHost  string

		MongoURI      string
		MongoDatabase string

		RedisAddr     string
		RedisPassword string

		JWTSecret string
		TokenTTL  time.Duration

		SessionDuration time.Duration
		TimerInterval   time.Duration
	}
)

// Load reads configuration from the environment, with an optional .env file.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded")
	}

	return &Config{
		ListenAddr:      getEnv("LISTEN_ADDR", "localhost:9090"),
		RelayHost:       getEnv("RELAY_HOST", "localhost:9090"),
		MongoURI:        getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGO_DATABASE", "bone_chat"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		JWTSecret:       getEnv("JWT_SECRET", "dev-only-secret"),
		TokenTTL:        getDuration("TOKEN_TTL", 72*time.Hour),
		SessionDuration: getDuration("SESSION_DURATION", 5*time.Minute),
		TimerInterval:   getDuration("TIMER_INTERVAL", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatal("invalid duration in environment: " + key)
	}
	return d
}
