package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"spookmail-bot/internal/bot"
	"spookmail-bot/internal/broadcast"
	"spookmail-bot/internal/config"
	"spookmail-bot/internal/metrics"
	"spookmail-bot/internal/migrations"
	"spookmail-bot/internal/quota"
	"spookmail-bot/internal/referral"
	"spookmail-bot/internal/scheduler"
	"spookmail-bot/internal/store"
	"spookmail-bot/internal/user"
	"spookmail-bot/internal/verifier"
)

const (
	schedulerInterval = time.Minute
	userInactivity    = 30 * 24 * time.Hour
)

func main() {
	// Инициализация логгера
	logger, err := initLogger()
	if err != nil {
		fmt.Printf("Ошибка инициализации логгера: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("запуск приложения SpookMail Bot")

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("ошибка загрузки конфигурации", zap.Error(err))
	}

	// Инициализация базы данных
	st, err := store.NewStore(cfg, logger)
	if err != nil {
		logger.Fatal("ошибка инициализации базы данных", zap.Error(err))
	}
	defer st.Close()

	// Применение миграций
	if err := migrations.Run(cfg, logger); err != nil {
		logger.Fatal("ошибка применения миграций", zap.Error(err))
	}

	// Инициализация клиента проверки email
	verifierClient := verifier.NewClient(cfg.Verifier.APIURL, cfg.Verifier.APIKey, cfg.Verifier.Timeout, logger)
	if !verifierClient.Configured() {
		logger.Warn("внешний API проверки email не настроен, используется локальная эвристика")
	}

	// Инициализация сервисов
	quotaService := quota.NewService(st.User(), cfg.Quota.CycleDuration, logger)
	referralService := referral.NewService(st.User(), st.Stats(), cfg.Referral.BonusChecks, logger)
	userService := user.NewService(st, referralService, cfg.Quota.ChecksLimit, logger)

	// Инициализация метрик
	metricsSystem := metrics.New(logger)
	metricsHandler := metrics.NewHandler(metricsSystem, logger)

	// Инициализация Telegram бота
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Fatal("ошибка инициализации Telegram бота", zap.Error(err))
	}

	botInfo, err := botAPI.GetMe()
	if err != nil {
		logger.Fatal("ошибка получения информации о боте", zap.Error(err))
	}

	logger.Info("Telegram бот инициализирован",
		zap.String("username", botInfo.UserName),
		zap.Int64("id", botInfo.ID))

	// Инициализация диспетчера рассылок
	sender := bot.NewSender(botAPI, userService, metricsSystem, logger)
	broadcastService := broadcast.NewService(
		st.Broadcast(), st.User(), sender,
		cfg.Broadcast.PaceInterval, cfg.Broadcast.ProgressInterval,
		logger,
	)

	// Инициализация обработчика
	handler := bot.NewHandler(botAPI, userService, quotaService, referralService, verifierClient, st, metricsSystem, logger)

	// Инициализация планировщика задач
	taskScheduler := scheduler.NewScheduler(logger)
	taskScheduler.AddJob(scheduler.NewBroadcastJob(st.Broadcast(), broadcastService, metricsSystem, logger))
	taskScheduler.AddJob(scheduler.NewDeactivateUsersJob(userService, userInactivity, logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Обработка сигналов для graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Запуск HTTP сервера для метрик
	go startMetricsServer(ctx, cfg.App.Port, metricsHandler, logger)

	// Запуск планировщика задач
	go taskScheduler.Start(ctx, schedulerInterval)

	// Запуск обработки обновлений
	go handleUpdates(ctx, botAPI, handler, logger)

	logger.Info("приложение запущено и готово к работе",
		zap.String("address", fmt.Sprintf("http://localhost:%d", cfg.App.Port)),
	)

	// Ожидание сигнала завершения
	<-sigChan
	logger.Info("получен сигнал завершения, начинаем graceful shutdown")

	cancel()
	botAPI.StopReceivingUpdates()

	// Даем активным обработчикам время завершиться
	time.Sleep(2 * time.Second)

	logger.Info("приложение завершено")
}

// initLogger инициализирует логгер
func initLogger() (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.OutputPaths = []string{"stdout", "logs/app.log"}
	config.ErrorOutputPaths = []string{"stderr", "logs/error.log"}

	// Создаем директорию для логов если её нет
	if err := os.MkdirAll("logs", 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории логов: %w", err)
	}

	return config.Build()
}

// handleUpdates обрабатывает обновления от Telegram
func handleUpdates(ctx context.Context, botAPI *tgbotapi.BotAPI, handler *bot.Handler, logger *zap.Logger) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60

	updates := botAPI.GetUpdatesChan(updateConfig)

	for {
		select {
		case update := <-updates:
			// Пропускаем пустые обновления
			if update.Message == nil && update.CallbackQuery == nil {
				continue
			}

			// Обрабатываем обновление в горутине
			go func(update tgbotapi.Update) {
				if err := handler.HandleUpdate(ctx, update); err != nil {
					var chatID int64
					if update.Message != nil {
						chatID = update.Message.Chat.ID
					} else if update.CallbackQuery != nil && update.CallbackQuery.Message != nil {
						chatID = update.CallbackQuery.Message.Chat.ID
					}

					logger.Error("ошибка обработки обновления",
						zap.Int64("chat_id", chatID),
						zap.Error(err))
				}
			}(update)

		case <-ctx.Done():
			logger.Info("остановка обработки обновлений")
			return
		}
	}
}

// startMetricsServer запускает HTTP сервер для метрик
func startMetricsServer(ctx context.Context, port int, handler *metrics.Handler, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler.MetricsHandler())
	mux.HandleFunc("/health", handler.HealthHandler)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	logger.Info("HTTP сервер метрик запущен", zap.String("address", server.Addr))

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("ошибка HTTP сервера метрик", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка при остановке HTTP сервера метрик", zap.Error(err))
	}

	logger.Info("HTTP сервер метрик остановлен")
}
