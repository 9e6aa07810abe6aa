package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"spookmail-bot/internal/broadcast"
	"spookmail-bot/internal/metrics"
	"spookmail-bot/internal/store"
	"spookmail-bot/pkg/models"
)

// BroadcastJob запускает запланированные рассылки, время которых наступило.
// Рассылки выполняются по одной: пока идет текущая, следующая ждет
// очередного тика планировщика.
type BroadcastJob struct {
	broadcastRepo    store.BroadcastRepository
	broadcastService *broadcast.Service
	metrics          *metrics.Metrics
	logger           *zap.Logger
}

// NewBroadcastJob создает новую джобу запуска рассылок
func NewBroadcastJob(
	broadcastRepo store.BroadcastRepository,
	broadcastService *broadcast.Service,
	m *metrics.Metrics,
	logger *zap.Logger,
) *BroadcastJob {
	return &BroadcastJob{
		broadcastRepo:    broadcastRepo,
		broadcastService: broadcastService,
		metrics:          m,
		logger:           logger,
	}
}

// Name возвращает имя задачи
func (j *BroadcastJob) Name() string {
	return "broadcast"
}

// Run находит рассылки с наступившим временем запуска и выполняет их
func (j *BroadcastJob) Run(ctx context.Context) error {
	due, err := j.broadcastRepo.GetDue(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка получения запланированных рассылок: %w", err)
	}

	for _, b := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		j.logger.Info("запуск запланированной рассылки",
			zap.Int64("broadcast_id", b.ID),
			zap.String("title", b.Title))

		result, err := j.broadcastService.Run(ctx, b.ID)
		if err != nil {
			j.logger.Error("ошибка выполнения рассылки",
				zap.Int64("broadcast_id", b.ID),
				zap.Error(err))
			continue
		}

		status := models.BroadcastStatusCompleted
		if ctx.Err() != nil {
			status = models.BroadcastStatusCancelled
		}
		j.metrics.RecordBroadcastRun(status)

		j.logger.Info("запланированная рассылка выполнена",
			zap.Int64("broadcast_id", b.ID),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed))
	}

	return nil
}
