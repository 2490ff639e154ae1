package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	DB struct {
		DSN string
	}
	Kafka struct {
		Brokers         string
		TaskTopic       string
		DeadLetterTopic string
		GroupID         string
	}
	API struct {
		Port string
	}
	Auth struct {
		Secret   string
		TokenTTL time.Duration
	}
	Worker struct {
		Count       int
		MaxAttempts int
		RetryDelay  time.Duration
	}
	Ingest struct {
		EnqueueTimeout time.Duration
	}
	Classifier struct {
		CriticalThreshold float64
		CriticalTypes     string
	}
	Telegram struct {
		BotToken string
		ChatID   int64
	}
	Logging struct {
		Dir   string
		Level string
	}
}

// Load reads environment variables, applies defaults, and returns a Config.
func Load() (Config, error) {
	// Load .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	var cfg Config

	cfg.DB.DSN = os.Getenv("DB_DSN")

	cfg.Kafka.Brokers = os.Getenv("KAFKA_BROKERS")
	cfg.Kafka.TaskTopic = os.Getenv("KAFKA_TASK_TOPIC")
	cfg.Kafka.DeadLetterTopic = os.Getenv("KAFKA_DEAD_LETTER_TOPIC")
	cfg.Kafka.GroupID = os.Getenv("KAFKA_GROUP_ID")

	cfg.API.Port = os.Getenv("API_PORT")

	cfg.Auth.Secret = os.Getenv("AUTH_SECRET")
	if d, err := time.ParseDuration(os.Getenv("AUTH_TOKEN_TTL")); err == nil {
		cfg.Auth.TokenTTL = d
	}

	if n, err := strconv.Atoi(os.Getenv("WORKER_COUNT")); err == nil {
		cfg.Worker.Count = n
	}
	if n, err := strconv.Atoi(os.Getenv("WORKER_MAX_ATTEMPTS")); err == nil {
		cfg.Worker.MaxAttempts = n
	}
	if d, err := time.ParseDuration(os.Getenv("WORKER_RETRY_DELAY")); err == nil {
		cfg.Worker.RetryDelay = d
	}

	if d, err := time.ParseDuration(os.Getenv("INGEST_ENQUEUE_TIMEOUT")); err == nil {
		cfg.Ingest.EnqueueTimeout = d
	}

	if f, err := strconv.ParseFloat(os.Getenv("CLASSIFIER_CRITICAL_THRESHOLD"), 64); err == nil {
		cfg.Classifier.CriticalThreshold = f
	}
	cfg.Classifier.CriticalTypes = os.Getenv("CLASSIFIER_CRITICAL_TYPES")

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if id, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64); err == nil {
		cfg.Telegram.ChatID = id
	}

	cfg.Logging.Dir = os.Getenv("LOG_DIR")
	cfg.Logging.Level = os.Getenv("LOG_LEVEL")

	// Validate required settings
	missing := []string{}
	if cfg.DB.DSN == "" {
		missing = append(missing, "DB_DSN")
	}
	if cfg.Kafka.Brokers == "" {
		missing = append(missing, "KAFKA_BROKERS")
	}
	if cfg.Auth.Secret == "" {
		missing = append(missing, "AUTH_SECRET")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required configurations: %v", missing)
	}

	// Apply defaults
	if cfg.Kafka.TaskTopic == "" {
		cfg.Kafka.TaskTopic = "camera_tasks"
	}
	if cfg.Kafka.DeadLetterTopic == "" {
		cfg.Kafka.DeadLetterTopic = "camera_tasks_dead"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "camera-alert-workers"
	}
	if cfg.API.Port == "" {
		cfg.API.Port = ":7001"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 30 * time.Minute
	}
	if cfg.Worker.Count == 0 {
		cfg.Worker.Count = 4
	}
	if cfg.Worker.MaxAttempts == 0 {
		cfg.Worker.MaxAttempts = 3
	}
	if cfg.Worker.RetryDelay == 0 {
		cfg.Worker.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Ingest.EnqueueTimeout == 0 {
		cfg.Ingest.EnqueueTimeout = 2 * time.Second
	}
	if cfg.Classifier.CriticalThreshold == 0 {
		cfg.Classifier.CriticalThreshold = 0.8
	}
	if cfg.Classifier.CriticalTypes == "" {
		cfg.Classifier.CriticalTypes = "intrusion,person_detected"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	return cfg, nil
}
