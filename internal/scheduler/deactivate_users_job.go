package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"spookmail-bot/internal/user"
)

// DeactivateUsersJob снимает флаг активности у пользователей, давно не
// обращавшихся к боту. Такие пользователи выпадают из аудитории active,
// но снова становятся активными при первом же сообщении.
type DeactivateUsersJob struct {
	userService *user.Service
	inactivity  time.Duration
	logger      *zap.Logger
}

// NewDeactivateUsersJob создает новую джобу деактивации пользователей
func NewDeactivateUsersJob(userService *user.Service, inactivity time.Duration, logger *zap.Logger) *DeactivateUsersJob {
	return &DeactivateUsersJob{
		userService: userService,
		inactivity:  inactivity,
		logger:      logger,
	}
}

// Name возвращает имя задачи
func (j *DeactivateUsersJob) Name() string {
	return "deactivate_users"
}

// Run деактивирует пользователей, не появлявшихся дольше порога
func (j *DeactivateUsersJob) Run(ctx context.Context) error {
	count, err := j.userService.DeactivateInactive(ctx, j.inactivity)
	if err != nil {
		return fmt.Errorf("ошибка деактивации пользователей: %w", err)
	}

	if count > 0 {
		j.logger.Info("деактивированы давно не появлявшиеся пользователи",
			zap.Int64("count", count),
			zap.Duration("inactivity", j.inactivity))
	}

	return nil
}
