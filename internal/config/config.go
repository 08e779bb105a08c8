package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/psds-microservice/support-bot/internal/database"
	"github.com/psds-microservice/support-bot/internal/model"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// AdminUserID: единственный администратор поддержки (Telegram user id).
	AdminUserID   int64
	TelegramToken string

	// DBDriver: postgres (по умолчанию) или sqlite для локального запуска без сервера БД.
	DBDriver   string
	SQLitePath string
	DB         struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}

	// KafkaBrokers: если пусто, события тикетов не публикуются.
	KafkaBrokers     string
	KafkaTopicTicket string

	// AssistantURL: OpenAI-совместимый endpoint; если пусто, пользователи без тикета получают подсказку про кнопки.
	AssistantURL     string
	AssistantAPIKey  string
	AssistantModel   string
	AssistantPrompt  string
	EscalationMarker string

	SessionTTL    time.Duration
	SweepSchedule string
	Workers       int
}

// Load читает .env (если есть) и переменные окружения.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:          getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:         firstEnv("APP_PORT", "HTTP_PORT", "8098"),
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		TelegramToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", database.DriverPostgres)),
		SQLitePath:       getEnv("SQLITE_PATH", "support-bot.db"),
		KafkaBrokers:     getEnv("KAFKA_BROKERS", ""),
		KafkaTopicTicket: getEnv("KAFKA_TOPIC_TICKET", "support.tickets"),
		AssistantURL:     getEnv("ASSISTANT_URL", ""),
		AssistantAPIKey:  getEnv("ASSISTANT_API_KEY", ""),
		AssistantModel:   getEnv("ASSISTANT_MODEL", "gpt-4o-mini"),
		AssistantPrompt:  getEnv("ASSISTANT_PROMPT", defaultPrompt),
		EscalationMarker: getEnv("ESCALATION_MARKER", "call the administrator"),
		SweepSchedule:    getEnv("SWEEP_SCHEDULE", "@every 1m"),
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "support_bot")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")

	var err error
	if v := getEnv("ADMIN_USER_ID", ""); v != "" {
		if cfg.AdminUserID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("config: ADMIN_USER_ID: %w", err)
		}
	}
	if cfg.SessionTTL, err = time.ParseDuration(getEnv("SESSION_TTL", "5m")); err != nil {
		return nil, fmt.Errorf("config: SESSION_TTL: %w", err)
	}
	if cfg.Workers, err = strconv.Atoi(getEnv("WORKERS", "4")); err != nil {
		return nil, fmt.Errorf("config: WORKERS: %w", err)
	}
	return cfg, nil
}

const defaultPrompt = "You are a support assistant. Answer the user's question briefly. " +
	"If you cannot help or the user asks for a human, reply with the exact phrase \"call the administrator\"."

// Validate проверяет то, без чего бот не может работать. Миграциям токен и администратор не нужны,
// поэтому для них используется ValidateDB.
func (c *Config) Validate() error {
	if err := c.ValidateDB(); err != nil {
		return err
	}
	if c.TelegramToken == "" {
		return errors.New("config: TELEGRAM_BOT_TOKEN is required")
	}
	if c.AdminUserID == 0 {
		return errors.New("config: ADMIN_USER_ID is required")
	}
	if c.AdminUserID == model.BotSenderID {
		return fmt.Errorf("config: ADMIN_USER_ID %d is reserved for the assistant", model.BotSenderID)
	}
	if c.SessionTTL <= 0 {
		return errors.New("config: SESSION_TTL must be positive")
	}
	if c.Workers < 1 {
		return errors.New("config: WORKERS must be at least 1")
	}
	return nil
}

// ValidateDB проверяет только настройки БД.
func (c *Config) ValidateDB() error {
	switch c.DBDriver {
	case database.DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH is required for sqlite")
		}
	case database.DriverPostgres:
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("config: DB_HOST and DB_DATABASE are required")
		}
		if c.AppEnv == "production" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DBDriver)
	}
	return nil
}

// DSN: строка подключения для выбранного драйвера.
func (c *Config) DSN() string {
	if c.DBDriver == database.DriverSQLite {
		return c.SQLitePath
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

// DatabaseURL: URL для goose (только postgres).
func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func (c *Config) Debug() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
