package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by NIGHTSHIFT_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("NIGHTSHIFT_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Load main env file (ignore error if file doesn't exist)
	_ = godotenv.Load(envFile)

	// Load secret sidecar if it exists
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

// ExtractorProvider returns the configured fact extraction provider.
// Valid values: http, mock. Defaults to "http".
func ExtractorProvider() string {
	p := os.Getenv("EXTRACTOR_PROVIDER")
	if p == "" {
		return "http"
	}
	return p
}

func ExtractionURL() string {
	return os.Getenv("EXTRACTION_URL")
}

func ExtractionAPIKey() string {
	return os.Getenv("EXTRACTION_API_KEY")
}

// ExtractionRPS returns the outbound rate limit for extraction calls.
// Defaults to 2 if not set.
func ExtractionRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("EXTRACTION_RPS"), 64)
	if err != nil || rps <= 0 {
		return 2
	}
	return rps
}

// ExtractionBurst returns the burst size for extraction calls.
// Defaults to 5 if not set.
func ExtractionBurst() int {
	burst, err := strconv.Atoi(os.Getenv("EXTRACTION_BURST"))
	if err != nil || burst <= 0 {
		return 5
	}
	return burst
}

// SleepBudgetMS returns the wall-clock budget for one sleep job.
// Defaults to 25000 if not set.
func SleepBudgetMS() int64 {
	ms, err := strconv.ParseInt(os.Getenv("SLEEP_BUDGET_MS"), 10, 64)
	if err != nil || ms <= 0 {
		return 25000
	}
	return ms
}

// DecayRate returns the per-run confidence decay fraction.
// Defaults to 0.05 if not set.
func DecayRate() float64 {
	rate, err := strconv.ParseFloat(os.Getenv("DECAY_RATE"), 64)
	if err != nil || rate <= 0 || rate >= 1 {
		return 0.05
	}
	return rate
}

// DecayStartDays returns how many untouched days make an item stale.
// Defaults to 14 if not set.
func DecayStartDays() int {
	days, err := strconv.Atoi(os.Getenv("DECAY_START_DAYS"))
	if err != nil || days <= 0 {
		return 14
	}
	return days
}

// SweepInterval returns how often the background sweeper runs all users.
// Defaults to 6h if not set.
func SweepInterval() time.Duration {
	d, err := time.ParseDuration(os.Getenv("SWEEP_INTERVAL"))
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}

// WorkerCount returns the sweep worker pool size.
// Defaults to 4 if not set.
func WorkerCount() int {
	n, err := strconv.Atoi(os.Getenv("WORKER_COUNT"))
	if err != nil || n <= 0 {
		return 4
	}
	return n
}

// RateLimitRPS returns the inbound requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for inbound rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}
