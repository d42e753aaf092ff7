package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`
	DB  struct {
		Path           string `validate:"required"`
		BusyTimeout    time.Duration
		MigrationsPath string // optional, e.g. "file://migrations"
	}
	HTTP struct {
		Addr string `validate:"required"`
	}
	Maintenance struct {
		CheckpointSchedule string // cron spec, empty disables the job
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.DB.Path = getenv("DB_PATH", "data/asqlite.db")
	c.DB.BusyTimeout = getdur("DB_BUSY_TIMEOUT", 5*time.Second)
	c.DB.MigrationsPath = os.Getenv("DB_MIGRATIONS")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Maintenance.CheckpointSchedule = getenv("MAINT_CHECKPOINT_SCHEDULE", "@every 15m")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = os.Getenv("LOG_FILE")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
