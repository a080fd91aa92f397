package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const PROD_STRING = "prod"

// Config holds all application configuration loaded from environment.
type Config struct {
	IsProduction      bool
	ProdOrigins       string
	HTTPAddr          string
	DBDSN             string
	MigrateOnStart    bool
	JWTSecret         string
	JWTAccessTokenTTL time.Duration
	BcryptCost        int

	Scheduling SchedulingConfig

	CatalogPath          string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	AvailabilityCacheTTL time.Duration
	AMQPURL              string
	RateLimitPerSec      float64
	RateLimitBurst       int
}

// SchedulingConfig holds the calendar rules of the single tutor.
type SchedulingConfig struct {
	TutorID               string
	Location              *time.Location
	WorkingHoursStart     string // HH:MM
	WorkingHoursEnd       string // HH:MM
	CancelLeadIndividual  time.Duration
	CancelLeadGroup       time.Duration
	PrivateGroupMaxMember int
}

// Load loads configuration from .env (optional) and environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		log.Printf("failed to load .env file: %v", err)
	}

	cfg := &Config{}

	// Production origin (default: empty)
	cfg.ProdOrigins = getEnv("PROD_ORIGINS", "")

	// Application environment (default: dev)
	appEnvStr := getEnv("APP_ENV", "dev")
	cfg.IsProduction = appEnvStr == PROD_STRING

	// HTTP listen address (default: :8080)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")

	// Database DSN is required
	cfg.DBDSN = os.Getenv("DB_DSN")
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required")
	}

	cfg.MigrateOnStart, err = getEnvAsBool("MIGRATE_ON_START", true)
	if err != nil {
		return nil, err
	}

	// JWT secret is required for signing tokens
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	// JWT access token TTL, parse as time.Duration (e.g. "15m", "1h").
	cfg.JWTAccessTokenTTL, err = getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}

	// Bcrypt cost for password hashing (default: 12)
	cfg.BcryptCost, err = getEnvAsInt("BCRYPT_COST", 12)
	if err != nil {
		return nil, fmt.Errorf("invalid BCRYPT_COST: %w", err)
	}

	cfg.Scheduling, err = loadScheduling()
	if err != nil {
		return nil, err
	}

	cfg.CatalogPath = getEnv("CATALOG_PATH", "")

	// Redis is optional; the availability cache falls back to process memory.
	cfg.RedisAddr = getEnv("REDIS_ADDR", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvAsInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.AvailabilityCacheTTL, err = getEnvAsDuration("AVAILABILITY_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	// Empty AMQP_URL disables event publishing.
	cfg.AMQPURL = getEnv("AMQP_URL", "")

	rps := getEnv("RATE_LIMIT_PER_SEC", "5")
	cfg.RateLimitPerSec, err = strconv.ParseFloat(rps, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_PER_SEC %q: %w", rps, err)
	}
	cfg.RateLimitBurst, err = getEnvAsInt("RATE_LIMIT_BURST", 10)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	return cfg, nil
}

func loadScheduling() (SchedulingConfig, error) {
	var sc SchedulingConfig
	var err error

	sc.TutorID = getEnv("TUTOR_ID", "tutor")

	tz := getEnv("TIMEZONE", "UTC")
	sc.Location, err = time.LoadLocation(tz)
	if err != nil {
		return sc, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	sc.WorkingHoursStart = getEnv("WORKING_HOURS_START", "09:00")
	sc.WorkingHoursEnd = getEnv("WORKING_HOURS_END", "21:00")
	start, err1 := time.Parse("15:04", sc.WorkingHoursStart)
	end, err2 := time.Parse("15:04", sc.WorkingHoursEnd)
	if err1 != nil || err2 != nil || !start.Before(end) {
		return sc, fmt.Errorf("invalid working hours %q-%q", sc.WorkingHoursStart, sc.WorkingHoursEnd)
	}

	sc.CancelLeadIndividual, err = getEnvAsDuration("CANCEL_LEAD_INDIVIDUAL", 12*time.Hour)
	if err != nil {
		return sc, err
	}
	sc.CancelLeadGroup, err = getEnvAsDuration("CANCEL_LEAD_GROUP", 3*time.Hour)
	if err != nil {
		return sc, err
	}

	sc.PrivateGroupMaxMember, err = getEnvAsInt("PRIVATE_GROUP_MAX_MEMBERS", 6)
	if err != nil {
		return sc, fmt.Errorf("invalid PRIVATE_GROUP_MAX_MEMBERS: %w", err)
	}
	if sc.PrivateGroupMaxMember < 2 {
		return sc, fmt.Errorf("PRIVATE_GROUP_MAX_MEMBERS must be at least 2")
	}

	return sc, nil
}

// getEnv returns the value of the environment variable if set,
// otherwise returns the provided default value.
func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer.
// It returns the default value if the variable is not set.
// It returns an error if the variable is set but is not a valid integer.
func getEnvAsInt(key string, defaultValue int) (int, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		// Return 0 and a wrapped error to provide context
		return 0, fmt.Errorf("env %s value %q is not a valid integer: %w", key, valStr, err)
	}

	return val, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(valStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return val, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valStr := getEnv(key, "")
	if valStr == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return false, fmt.Errorf("env %s value %q is not a valid bool: %w", key, valStr, err)
	}
	return val, nil
}
