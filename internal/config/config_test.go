package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig(t *testing.T) {
	// Устанавливаем переменные окружения для теста
	os.Setenv("TELEGRAM_BOT_TOKEN", "test_token")
	os.Setenv("DB_HOST", "localhost")
	os.Setenv("DB_USER", "test_user")
	os.Setenv("DB_PASSWORD", "test_password")
	os.Setenv("DB_NAME", "test_db")

	// Загружаем конфигурацию
	cfg, err := Load()

	// Проверяем, что конфигурация загружена без ошибок
	assert.NoError(t, err)
	assert.NotNil(t, cfg)

	// Проверяем значения
	assert.Equal(t, "test_token", cfg.Telegram.BotToken)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "test_user", cfg.Database.User)
	assert.Equal(t, "test_password", cfg.Database.Password)
	assert.Equal(t, "test_db", cfg.Database.Name)

	// Проверяем значения по умолчанию
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 5, cfg.Quota.ChecksLimit)
	assert.Equal(t, 72*time.Hour, cfg.Quota.CycleDuration)
	assert.Equal(t, 5, cfg.Referral.BonusChecks)
	assert.Equal(t, 100*time.Millisecond, cfg.Broadcast.PaceInterval)
	assert.Equal(t, 25, cfg.Broadcast.ProgressInterval)
	assert.Equal(t, 10*time.Second, cfg.Verifier.Timeout)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 8080, cfg.App.Port)
}

func TestLoadConfigOverrides(t *testing.T) {
	os.Setenv("TELEGRAM_BOT_TOKEN", "test_token")
	os.Setenv("DB_HOST", "localhost")
	os.Setenv("DB_USER", "test_user")
	os.Setenv("DB_PASSWORD", "test_password")
	os.Setenv("DB_NAME", "test_db")
	os.Setenv("QUOTA_CHECKS_LIMIT", "10")
	os.Setenv("QUOTA_CYCLE_HOURS", "24")
	os.Setenv("REFERRAL_BONUS_CHECKS", "3")
	os.Setenv("BROADCAST_PACE_MS", "250")
	defer func() {
		os.Unsetenv("QUOTA_CHECKS_LIMIT")
		os.Unsetenv("QUOTA_CYCLE_HOURS")
		os.Unsetenv("REFERRAL_BONUS_CHECKS")
		os.Unsetenv("BROADCAST_PACE_MS")
	}()

	cfg, err := Load()

	assert.NoError(t, err)
	assert.Equal(t, 10, cfg.Quota.ChecksLimit)
	assert.Equal(t, 24*time.Hour, cfg.Quota.CycleDuration)
	assert.Equal(t, 3, cfg.Referral.BonusChecks)
	assert.Equal(t, 250*time.Millisecond, cfg.Broadcast.PaceInterval)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "test_user",
		Password: "test_password",
		Name:     "test_db",
		SSLMode:  "disable",
	}

	dsn := cfg.GetDSN()
	expected := "host=localhost port=5432 user=test_user password=test_password dbname=test_db sslmode=disable"
	assert.Equal(t, expected, dsn)
}

func TestAppConfigMethods(t *testing.T) {
	cfg := &AppConfig{
		Env:      "development",
		LogLevel: "debug",
	}

	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestValidateConfig(t *testing.T) {
	// Тест с пустыми обязательными полями
	cfg := &Config{}
	err := validateConfig(cfg)
	assert.Error(t, err)

	// Тест с корректной конфигурацией
	cfg = &Config{
		Telegram: TelegramConfig{
			BotToken: "test_token",
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			User:     "test_user",
			Password: "test_password",
			Name:     "test_db",
		},
		Quota: QuotaConfig{
			ChecksLimit:   5,
			CycleDuration: 72 * time.Hour,
		},
		Referral: ReferralConfig{
			BonusChecks: 5,
		},
	}
	err = validateConfig(cfg)
	assert.NoError(t, err)
}
