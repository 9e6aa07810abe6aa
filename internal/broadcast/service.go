package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"spookmail-bot/pkg/models"
)

// MessageSender отправляет сообщение рассылки одному получателю
type MessageSender interface {
	SendBroadcastMessage(ctx context.Context, chatID int64, broadcast *models.Broadcast) error
}

// BroadcastRepository интерфейс для работы с рассылками
type BroadcastRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Broadcast, error)
	MarkSending(ctx context.Context, id int64, sentAt time.Time) error
	UpdateProgress(ctx context.Context, id int64, sentCount int) error
	Finish(ctx context.Context, id int64, status string, sentCount, totalTargets int) error
}

// UserRepository интерфейс для получения аудитории рассылки
type UserRepository interface {
	ListByAudience(ctx context.Context, audience string) ([]*models.User, error)
}

// Service представляет диспетчер массовых рассылок.
// Получатели обходятся последовательно с ограничением темпа отправки,
// чтобы не упереться в лимиты Telegram API.
type Service struct {
	broadcastRepo    BroadcastRepository
	userRepo         UserRepository
	sender           MessageSender
	paceInterval     time.Duration
	progressInterval int
	logger           *zap.Logger
}

// NewService создает новый диспетчер рассылок
func NewService(
	broadcastRepo BroadcastRepository,
	userRepo UserRepository,
	sender MessageSender,
	paceInterval time.Duration,
	progressInterval int,
	logger *zap.Logger,
) *Service {
	return &Service{
		broadcastRepo:    broadcastRepo,
		userRepo:         userRepo,
		sender:           sender,
		paceInterval:     paceInterval,
		progressInterval: progressInterval,
		logger:           logger,
	}
}

// Run выполняет рассылку от начала до конца: переводит ее в статус sending,
// последовательно отправляет сообщение каждому получателю аудитории и
// записывает итог. Ошибка отправки одному получателю не прерывает рассылку.
//
// При отмене контекста рассылка завершается со статусом cancelled и
// фактическими счетчиками на момент остановки.
func (s *Service) Run(ctx context.Context, broadcastID int64) (*models.BroadcastResult, error) {
	broadcast, err := s.broadcastRepo.GetByID(ctx, broadcastID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения рассылки: %w", err)
	}

	users, err := s.userRepo.ListByAudience(ctx, broadcast.TargetAudience)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения аудитории рассылки: %w", err)
	}

	if err := s.broadcastRepo.MarkSending(ctx, broadcastID, time.Now()); err != nil {
		return nil, fmt.Errorf("ошибка запуска рассылки: %w", err)
	}

	s.logger.Info("рассылка запущена",
		zap.Int64("broadcast_id", broadcastID),
		zap.String("title", broadcast.Title),
		zap.String("target_audience", broadcast.TargetAudience),
		zap.Int("audience_size", len(users)))

	limiter := rate.NewLimiter(rate.Every(s.paceInterval), 1)
	result := &models.BroadcastResult{}
	cancelled := false

	for _, user := range users {
		if err := limiter.Wait(ctx); err != nil {
			cancelled = true
			break
		}

		if err := s.sender.SendBroadcastMessage(ctx, user.ID, broadcast); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				cancelled = true
				break
			}
			result.Failed++
			s.logger.Warn("ошибка отправки сообщения рассылки",
				zap.Int64("broadcast_id", broadcastID),
				zap.Int64("user_id", user.ID),
				zap.Error(err))
			continue
		}

		result.Sent++

		if s.progressInterval > 0 && result.Sent%s.progressInterval == 0 {
			if err := s.broadcastRepo.UpdateProgress(ctx, broadcastID, result.Sent); err != nil {
				s.logger.Error("ошибка сохранения прогресса рассылки",
					zap.Int64("broadcast_id", broadcastID),
					zap.Error(err))
			}
		}
	}

	status := models.BroadcastStatusCompleted
	if cancelled {
		status = models.BroadcastStatusCancelled
	}

	// Итог записывается фоновым контекстом: отмена рассылки не должна
	// помешать зафиксировать ее фактическое состояние
	finishCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	totalTargets := result.Sent + result.Failed
	if err := s.broadcastRepo.Finish(finishCtx, broadcastID, status, result.Sent, totalTargets); err != nil {
		return result, fmt.Errorf("ошибка завершения рассылки: %w", err)
	}

	s.logger.Info("рассылка завершена",
		zap.Int64("broadcast_id", broadcastID),
		zap.String("status", status),
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed))

	return result, nil
}
