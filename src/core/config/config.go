package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds the typed runtime configuration of the service.
type Settings struct {
	AppPort string

	DBDriver   string
	DBDSN      string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxConns int
	DBLogLevel string

	CacheDriver string
	CacheTTL    time.Duration
	RedisURL    string

	StorageDriver string
	UploadDir     string
	SupabaseURL   string
	SupabaseKey   string
	BucketName    string

	JWTSecret string
}

func SetupEnv() {
	// Load environment variables from .env file; a missing file is fine in containers
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}
}

// Config returns the environment variable or defaults to empty string
func Config(key string) string {
	return os.Getenv(key)
}

// ConfigDefault returns the environment variable or fallback when it is unset or empty.
func ConfigDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func configInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func configDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

// Load reads Settings from the environment.
func Load() Settings {
	return Settings{
		AppPort: ConfigDefault("APP_PORT", "3000"),

		DBDriver:   ConfigDefault("DB_DRIVER", "postgres"),
		DBDSN:      Config("DB_DSN"),
		DBHost:     ConfigDefault("DB_HOST", "localhost"),
		DBPort:     ConfigDefault("DB_PORT", "5432"),
		DBUser:     Config("DB_USER"),
		DBPassword: Config("DB_PASSWORD"),
		DBName:     Config("DB_NAME"),
		DBMaxConns: configInt("DB_MAX_CONNS", 20),
		DBLogLevel: ConfigDefault("DB_LOG_LEVEL", "warn"),

		CacheDriver: ConfigDefault("CACHE_DRIVER", "memory"),
		CacheTTL:    configDuration("CACHE_TTL", 10*time.Minute),
		RedisURL:    ConfigDefault("REDIS_URL", "redis://localhost:6379/0"),

		StorageDriver: ConfigDefault("STORAGE_DRIVER", "local"),
		UploadDir:     ConfigDefault("UPLOAD_DIR", "uploads"),
		SupabaseURL:   Config("SUPABASE_URL"),
		SupabaseKey:   Config("SUPABASE_KEY"),
		BucketName:    Config("BUCKET_NAME"),

		JWTSecret: Config("JWT_SECRET"),
	}
}
