package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Load reads the .env file specified by WWFM_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("WWFM_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the environment may already be populated.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	return intOr("SERVER_PORT", 8080)
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

// AdminAPIKey guards the /v1/admin routes. Empty disables them.
func AdminAPIKey() string {
	return os.Getenv("ADMIN_API_KEY")
}

func MigrationsPath() string {
	p := os.Getenv("MIGRATIONS_PATH")
	if p == "" {
		return "migrations"
	}
	return p
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intOr("RATE_LIMIT_BURST", 20)
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

// TransitionThreshold is the human rating count at which a link flips to
// human display. Defaults to 3.
func TransitionThreshold() int {
	return intOr("TRANSITION_THRESHOLD", 3)
}

// AggregationRetryAttempts bounds inline aggregation attempts per submission.
// Zero sends every submission straight to the queue.
func AggregationRetryAttempts() int {
	n, err := strconv.Atoi(os.Getenv("AGGREGATION_RETRY_ATTEMPTS"))
	if err != nil || n < 0 {
		return 3
	}
	return n
}

// AggregationRetryBase is the unit of the linear backoff: attempt n waits
// n×base. Defaults to 1s.
func AggregationRetryBase() time.Duration {
	return durationOr("AGGREGATION_RETRY_BASE", time.Second)
}

func QueueBatchSize() int {
	return intOr("QUEUE_BATCH_SIZE", 5)
}

func QueueMaxAttempts() int {
	return intOr("QUEUE_MAX_ATTEMPTS", 3)
}

func QueueInterval() time.Duration {
	return durationOr("QUEUE_INTERVAL", 30*time.Second)
}

func QueueStuckTimeout() time.Duration {
	return durationOr("QUEUE_STUCK_TIMEOUT", 5*time.Minute)
}

// AutoApproveThreshold is the rating count at which a pending solution is
// approved. Defaults to 3.
func AutoApproveThreshold() int {
	return intOr("AUTO_APPROVE_THRESHOLD", 3)
}

// FollowUpDelay is how far out a rating check-in is scheduled. Defaults to
// roughly six months.
func FollowUpDelay() time.Duration {
	return durationOr("FOLLOW_UP_DELAY", 4380*time.Hour)
}

func intOr(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func durationOr(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// NewLogger builds a production zap logger at LOG_LEVEL.
func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(LogLevel())
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", LogLevel(), err)
	}
	cfg.Level = level
	return cfg.Build()
}
