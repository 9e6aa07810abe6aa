package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"spookmail-bot/internal/config"
	"spookmail-bot/internal/store"
)

func main() {
	var (
		days   = flag.Int("days", 90, "Удалить проверки старше указанного количества дней")
		dryRun = flag.Bool("dry-run", false, "Показать что будет удалено без фактического удаления")
	)
	flag.Parse()

	// Инициализация логгера
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Ошибка инициализации логгера:", err)
	}
	defer logger.Sync()

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Ошибка загрузки конфигурации", zap.Error(err))
	}

	// Подключение к базе данных
	st, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("Ошибка подключения к базе данных", zap.Error(err))
	}
	defer st.Close()

	ctx := context.Background()
	cutoff := time.Now().AddDate(0, 0, -*days)

	count, err := st.Check().CountOlderThan(ctx, cutoff)
	if err != nil {
		logger.Fatal("Ошибка подсчета старых проверок", zap.Error(err))
	}

	if count == 0 {
		logger.Info("Нет проверок для удаления", zap.Time("cutoff", cutoff))
		return
	}

	if *dryRun {
		logger.Info("DRY RUN: Будет удалено проверок",
			zap.Int64("count", count),
			zap.Time("cutoff", cutoff))
		return
	}

	deleted, err := st.Check().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		logger.Fatal("Ошибка удаления старых проверок", zap.Error(err))
	}

	logger.Info("Очистка старых проверок завершена",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff))
}
