package quota

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"spookmail-bot/pkg/models"
)

// Service представляет сервис лимитов проверок email.
// Сброс окна выполняется лениво при очередном обращении пользователя:
// отдельного фонового процесса для этого нет.
type Service struct {
	userRepo UserRepository
	cycle    time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// UserRepository интерфейс для работы с пользователями
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ResetChecksIfDue(ctx context.Context, userID int64, cutoff, now time.Time) (bool, error)
	ConsumeCheck(ctx context.Context, userID int64) (bool, error)
}

// NewService создает новый сервис лимитов
func NewService(userRepo UserRepository, cycle time.Duration, logger *zap.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		cycle:    cycle,
		logger:   logger,
		now:      time.Now,
	}
}

// TryConsume пытается списать одну проверку у пользователя.
// Возвращает false без ошибки, если лимит исчерпан.
//
// Сброс окна и списание выполняются условными атомарными запросами в
// хранилище, поэтому два конкурентных вызова для одного пользователя не
// могут превысить лимит: из двух инкрементов пройдет только тот, для
// которого условие checks_used < checks_limit + bonus_checks еще истинно.
func (s *Service) TryConsume(ctx context.Context, userID int64) (bool, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("ошибка получения пользователя: %w", err)
	}

	now := s.now()
	deadline := user.LastCheckReset.Add(s.cycle)

	// Окно истекло только при строгом now > deadline
	if now.After(deadline) {
		reset, err := s.userRepo.ResetChecksIfDue(ctx, userID, now.Add(-s.cycle), now)
		if err != nil {
			return false, fmt.Errorf("ошибка сброса окна лимита: %w", err)
		}
		if reset {
			s.logger.Info("окно лимита проверок истекло и сброшено",
				zap.Int64("user_id", userID),
				zap.Time("previous_reset", user.LastCheckReset))
		}
	}

	allowed, err := s.userRepo.ConsumeCheck(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("ошибка списания проверки: %w", err)
	}

	if !allowed {
		s.logger.Info("лимит проверок исчерпан",
			zap.Int64("user_id", userID),
			zap.Int("checks_used", user.ChecksUsed),
			zap.Int("checks_limit", user.ChecksLimit),
			zap.Int("bonus_checks", user.BonusChecks))
	}

	return allowed, nil
}

// Snapshot возвращает актуальное состояние лимита пользователя:
// количество оставшихся проверок и время следующего сброса.
// Истекшее окно учитывается так же лениво, как в TryConsume.
func (s *Service) Snapshot(ctx context.Context, userID int64) (remaining int, nextReset time.Time, err error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("ошибка получения пользователя: %w", err)
	}

	now := s.now()
	deadline := user.LastCheckReset.Add(s.cycle)

	if now.After(deadline) {
		// Окно уже истекло, но сброс еще не материализован
		return user.ChecksLimit + user.BonusChecks, now.Add(s.cycle), nil
	}

	return user.AvailableChecks(), deadline, nil
}

// CycleDuration возвращает длительность окна лимита
func (s *Service) CycleDuration() time.Duration {
	return s.cycle
}
