package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"spookmail-bot/internal/store"
	"spookmail-bot/pkg/models"
)

// Service представляет сервис для работы с пользователями
type Service struct {
	store       store.Store
	codes       CodeIssuer
	checksLimit int
	logger      *zap.Logger
}

// CodeIssuer выдает пользователю реферальный код
type CodeIssuer interface {
	EnsureCode(ctx context.Context, userID int64) (string, error)
}

// NewService создает новый сервис пользователей
func NewService(st store.Store, codes CodeIssuer, checksLimit int, logger *zap.Logger) *Service {
	return &Service{
		store:       st,
		codes:       codes,
		checksLimit: checksLimit,
		logger:      logger,
	}
}

// GetOrCreateUser получает пользователя по Telegram ID или создает нового
// с базовым лимитом проверок. У существующего пользователя обновляются
// данные профиля из Telegram, если они изменились.
func (s *Service) GetOrCreateUser(ctx context.Context, telegramID int64, username, firstName, lastName, languageCode string) (*models.User, error) {
	user, err := s.store.User().GetByID(ctx, telegramID)
	if err == nil {
		if user.Username != username || user.FirstName != firstName || user.LastName != lastName {
			user.Username = username
			user.FirstName = firstName
			user.LastName = lastName
			if err := s.store.User().Update(ctx, user); err != nil {
				s.logger.Warn("не удалось обновить профиль пользователя",
					zap.Int64("user_id", telegramID),
					zap.Error(err))
			}
		}
		return user, nil
	}

	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}

	user = &models.User{
		ID:           telegramID,
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		LanguageCode: languageCode,
		ChecksLimit:  s.checksLimit,
	}

	if err := s.store.User().Create(ctx, user); err != nil {
		return nil, fmt.Errorf("ошибка создания пользователя: %w", err)
	}

	// Реферальный код выдается сразу, чтобы пользователь мог делиться
	// ссылкой без дополнительного шага
	if code, err := s.codes.EnsureCode(ctx, user.ID); err != nil {
		s.logger.Warn("не удалось выдать реферальный код",
			zap.Int64("user_id", user.ID),
			zap.Error(err))
	} else {
		user.ReferralCode = &code
	}

	if err := s.store.Stats().IncrementToday(ctx, models.StatNewUsers, 1); err != nil {
		s.logger.Error("ошибка обновления статистики новых пользователей", zap.Error(err))
	}

	s.logger.Info("создан новый пользователь",
		zap.Int64("telegram_id", telegramID),
		zap.String("username", username))

	return user, nil
}

// GetByID получает пользователя по Telegram ID
func (s *Service) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.store.User().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}
	return user, nil
}

// MarkActive помечает пользователя активным после входящего сообщения.
// Пользователь, заблокировавший бота, становится активным снова, когда
// возвращается.
func (s *Service) MarkActive(ctx context.Context, userID int64) error {
	if err := s.store.User().SetActive(ctx, userID, true); err != nil {
		return fmt.Errorf("ошибка пометки пользователя активным: %w", err)
	}
	return nil
}

// MarkBlocked помечает пользователя неактивным, когда Telegram сообщает,
// что бот заблокирован
func (s *Service) MarkBlocked(ctx context.Context, userID int64) error {
	if err := s.store.User().SetActive(ctx, userID, false); err != nil {
		return fmt.Errorf("ошибка пометки пользователя заблокированным: %w", err)
	}

	s.logger.Info("пользователь заблокировал бота", zap.Int64("user_id", userID))
	return nil
}

// DeactivateInactive снимает флаг активности у пользователей, не появлявшихся
// дольше указанного срока. Возвращает количество деактивированных.
func (s *Service) DeactivateInactive(ctx context.Context, inactivity time.Duration) (int64, error) {
	count, err := s.store.User().DeactivateInactive(ctx, time.Now().Add(-inactivity))
	if err != nil {
		return 0, fmt.Errorf("ошибка деактивации неактивных пользователей: %w", err)
	}
	return count, nil
}

// RecentChecks возвращает последние проверки email пользователя
func (s *Service) RecentChecks(ctx context.Context, userID int64, limit int) ([]*models.EmailCheck, error) {
	checks, err := s.store.Check().GetByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения истории проверок: %w", err)
	}
	return checks, nil
}
