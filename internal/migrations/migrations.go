package migrations

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"spookmail-bot/internal/config"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Run применяет миграции к базе данных
func Run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("начало применения миграций")

	db, path, err := open(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.Up(db, path); err != nil {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	logger.Info("миграции успешно применены")
	return nil
}

// Status выводит статус миграций
func Status(cfg *config.Config, logger *zap.Logger) error {
	db, path, err := open(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.Status(db, path); err != nil {
		return fmt.Errorf("ошибка получения статуса миграций: %w", err)
	}

	return nil
}

// open подготавливает подключение и путь к миграциям.
// Миграции выполняются через database/sql с драйвером lib/pq,
// основной пул pgx для goose не используется.
func open(cfg *config.Config, logger *zap.Logger) (*sql.DB, string, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, "", fmt.Errorf("ошибка установки диалекта: %w", err)
	}

	dsn := fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("ошибка подключения к базе данных для миграций: %w", err)
	}

	return db, resolvePath(cfg.Database.MigrationPath, logger), nil
}

// resolvePath определяет фактический путь к директории с миграциями
func resolvePath(configPath string, logger *zap.Logger) string {
	if _, err := os.Stat(configPath); err == nil {
		return configPath
	}

	currentDir, err := os.Getwd()
	if err != nil {
		logger.Warn("не удалось получить текущую директорию, используем путь из конфигурации", zap.Error(err))
		return configPath
	}

	possiblePaths := []string{
		filepath.Join(currentDir, "scripts", "migrations"),
		filepath.Join(currentDir, "migrations"),
		filepath.Join(currentDir, "..", "scripts", "migrations"),
		"/app/scripts/migrations", // Для Docker контейнера
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			logger.Info("найден путь к миграциям", zap.String("path", path))
			return path
		}
	}

	logger.Warn("не удалось найти директорию с миграциями, используем путь из конфигурации",
		zap.String("path", configPath))
	return configPath
}
