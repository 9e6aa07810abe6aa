package referral

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"spookmail-bot/pkg/models"
)

const (
	// Алфавит реферального кода: без похожих символов 0/O и 1/I/l
	codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	codeLength   = 8

	// Количество попыток сгенерировать уникальный код при конфликте
	maxCodeAttempts = 5
)

// Service представляет сервис реферальной программы
type Service struct {
	userRepo    UserRepository
	statsRepo   StatsRepository
	bonusChecks int
	logger      *zap.Logger
}

// UserRepository интерфейс для работы с пользователями
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
	SetReferralCode(ctx context.Context, userID int64, code string) error
	SetReferredBy(ctx context.Context, userID, referrerID int64) (bool, error)
	AddReferralBonus(ctx context.Context, referrerID int64, bonusChecks int) error
}

// StatsRepository интерфейс для дневной статистики
type StatsRepository interface {
	IncrementToday(ctx context.Context, field string, amount int) error
}

// NewService создает новый сервис реферальной программы
func NewService(userRepo UserRepository, statsRepo StatsRepository, bonusChecks int, logger *zap.Logger) *Service {
	return &Service{
		userRepo:    userRepo,
		statsRepo:   statsRepo,
		bonusChecks: bonusChecks,
		logger:      logger,
	}
}

// EnsureCode возвращает реферальный код пользователя, генерируя его при
// первом обращении. При конфликте уникальности генерация повторяется.
func (s *Service) EnsureCode(ctx context.Context, userID int64) (string, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("ошибка получения пользователя: %w", err)
	}

	if user.ReferralCode != nil && *user.ReferralCode != "" {
		return *user.ReferralCode, nil
	}

	var lastErr error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", fmt.Errorf("ошибка генерации реферального кода: %w", err)
		}

		if err := s.userRepo.SetReferralCode(ctx, userID, code); err != nil {
			// Скорее всего конфликт уникальности, пробуем другой код
			lastErr = err
			continue
		}

		s.logger.Info("реферальный код присвоен",
			zap.Int64("user_id", userID),
			zap.String("code", code))

		return code, nil
	}

	return "", fmt.Errorf("не удалось присвоить уникальный реферальный код: %w", lastErr)
}

// Apply привязывает нового пользователя к пригласившему по реферальному коду
// и начисляет рефереру бонусные проверки. Возвращает false без ошибки, если
// привязка не произошла: код неизвестен, пользователь приглашает сам себя или
// уже привязан к рефереру.
//
// Привязка идемпотентна: условная запись referred_by проходит только один
// раз, поэтому повторный /start с тем же или другим кодом бонус не начислит.
func (s *Service) Apply(ctx context.Context, userID int64, code string) (bool, error) {
	if code == "" {
		return false, nil
	}

	referrer, err := s.userRepo.GetByReferralCode(ctx, code)
	if err != nil {
		s.logger.Warn("реферальный код не найден",
			zap.Int64("user_id", userID),
			zap.String("code", code))
		return false, nil
	}

	if referrer.ID == userID {
		s.logger.Warn("попытка самоприглашения",
			zap.Int64("user_id", userID),
			zap.String("code", code))
		return false, nil
	}

	linked, err := s.userRepo.SetReferredBy(ctx, userID, referrer.ID)
	if err != nil {
		return false, fmt.Errorf("ошибка привязки реферала: %w", err)
	}
	if !linked {
		// Пользователь уже был привязан ранее
		return false, nil
	}

	if err := s.userRepo.AddReferralBonus(ctx, referrer.ID, s.bonusChecks); err != nil {
		return false, fmt.Errorf("ошибка начисления бонуса рефереру: %w", err)
	}

	if err := s.statsRepo.IncrementToday(ctx, models.StatNewReferrals, 1); err != nil {
		s.logger.Error("ошибка обновления статистики рефералов", zap.Error(err))
	}

	s.logger.Info("реферал привязан",
		zap.Int64("user_id", userID),
		zap.Int64("referrer_id", referrer.ID),
		zap.Int("bonus_checks", s.bonusChecks))

	return true, nil
}

// BonusChecks возвращает размер бонуса за одного приглашенного
func (s *Service) BonusChecks() int {
	return s.bonusChecks
}

// Link строит реферальную ссылку для перехода в бота
func Link(botUsername, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=ref_%s", botUsername, code)
}

// generateCode генерирует криптографически случайный реферальный код
func generateCode() (string, error) {
	code := make([]byte, codeLength)
	alphabetLen := big.NewInt(int64(len(codeAlphabet)))

	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}

	return string(code), nil
}
