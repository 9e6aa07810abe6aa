package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config содержит все конфигурационные параметры приложения
type Config struct {
	Telegram  TelegramConfig
	Verifier  VerifierConfig
	Database  DatabaseConfig
	Quota     QuotaConfig
	Referral  ReferralConfig
	Broadcast BroadcastConfig
	App       AppConfig
}

// TelegramConfig содержит настройки Telegram бота
type TelegramConfig struct {
	BotToken string
}

// VerifierConfig содержит настройки внешнего сервиса проверки email
type VerifierConfig struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MigrationPath string
}

// QuotaConfig содержит настройки лимитов проверок
type QuotaConfig struct {
	ChecksLimit   int           // Базовый лимит проверок в одном окне
	CycleDuration time.Duration // Длительность окна лимита
}

// ReferralConfig содержит настройки реферальной системы
type ReferralConfig struct {
	BonusChecks int // Бонусные проверки за одного приглашенного
}

// BroadcastConfig содержит настройки массовых рассылок
type BroadcastConfig struct {
	PaceInterval     time.Duration // Пауза между отправками
	ProgressInterval int           // Частота сохранения прогресса (в отправках)
}

type AppConfig struct {
	Env      string
	LogLevel string
	Port     int
}

// Load загружает конфигурацию из переменных окружения и .env
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Telegram
	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	// Verifier
	cfg.Verifier.APIURL = getEnvDefault("VERIFIER_API_URL", "https://api.emailverification.com/v1")
	cfg.Verifier.APIKey = os.Getenv("VERIFIER_API_KEY")
	cfg.Verifier.Timeout = time.Duration(getEnvIntDefault("VERIFIER_TIMEOUT_SECONDS", 10)) * time.Second

	// Database
	cfg.Database.Host = getEnvDefault("DB_HOST", "localhost")
	cfg.Database.Port = getEnvIntDefault("DB_PORT", 5432)
	cfg.Database.User = os.Getenv("DB_USER")
	cfg.Database.Password = os.Getenv("DB_PASSWORD")
	cfg.Database.Name = os.Getenv("DB_NAME")
	cfg.Database.SSLMode = getEnvDefault("DB_SSL_MODE", "disable")
	cfg.Database.MigrationPath = getEnvDefault("MIGRATION_PATH", "scripts/migrations")

	// Quota
	cfg.Quota.ChecksLimit = getEnvIntDefault("QUOTA_CHECKS_LIMIT", 5)
	cfg.Quota.CycleDuration = time.Duration(getEnvIntDefault("QUOTA_CYCLE_HOURS", 72)) * time.Hour

	// Referral
	cfg.Referral.BonusChecks = getEnvIntDefault("REFERRAL_BONUS_CHECKS", 5)

	// Broadcast
	cfg.Broadcast.PaceInterval = time.Duration(getEnvIntDefault("BROADCAST_PACE_MS", 100)) * time.Millisecond
	cfg.Broadcast.ProgressInterval = getEnvIntDefault("BROADCAST_PROGRESS_INTERVAL", 25)

	// App
	cfg.App.Env = getEnvDefault("APP_ENV", "development")
	cfg.App.LogLevel = getEnvDefault("LOG_LEVEL", "info")
	cfg.App.Port = getEnvIntDefault("APP_PORT", 8080)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("ошибка валидации конфигурации: %w", err)
	}

	return cfg, nil
}

func getEnvDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// validateConfig проверяет корректность конфигурации
func validateConfig(config *Config) error {
	if config.Telegram.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN не установлен")
	}
	if config.Database.Host == "" {
		return fmt.Errorf("DB_HOST не установлен")
	}
	if config.Database.User == "" {
		return fmt.Errorf("DB_USER не установлен")
	}
	if config.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD не установлен")
	}
	if config.Database.Name == "" {
		return fmt.Errorf("DB_NAME не установлен")
	}
	if config.Quota.ChecksLimit <= 0 {
		return fmt.Errorf("QUOTA_CHECKS_LIMIT должен быть положительным")
	}
	if config.Quota.CycleDuration <= 0 {
		return fmt.Errorf("QUOTA_CYCLE_HOURS должен быть положительным")
	}
	if config.Referral.BonusChecks < 0 {
		return fmt.Errorf("REFERRAL_BONUS_CHECKS не может быть отрицательным")
	}
	if config.Broadcast.PaceInterval < 0 {
		return fmt.Errorf("BROADCAST_PACE_MS не может быть отрицательным")
	}

	return nil
}

// GetDSN возвращает строку подключения к базе данных
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *AppConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшн режиме
func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// GetLogLevel возвращает уровень логирования в формате zap
func (c *AppConfig) GetLogLevel() zap.AtomicLevel {
	switch c.LogLevel {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zap.InfoLevel)
	}
}
