package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spookmail-bot/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const userColumns = `id, username, first_name, last_name, language_code,
	       checks_used, checks_limit, bonus_checks, last_check_reset,
	       referral_code, referred_by, total_referrals,
	       is_active, created_at, updated_at`

// userRepository реализует UserRepository
type userRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewUserRepository создает новый репозиторий пользователей
func NewUserRepository(db *pgxpool.Pool, logger *zap.Logger) UserRepository {
	return &userRepository{
		db:     db,
		logger: logger,
	}
}

func scanUser(row pgx.Row) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID, &user.Username, &user.FirstName, &user.LastName, &user.LanguageCode,
		&user.ChecksUsed, &user.ChecksLimit, &user.BonusChecks, &user.LastCheckReset,
		&user.ReferralCode, &user.ReferredBy, &user.TotalReferrals,
		&user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Create создает нового пользователя
func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, first_name, last_name, language_code,
		                   checks_used, checks_limit, bonus_checks, last_check_reset,
		                   referral_code, referred_by, total_referrals,
		                   is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.LastCheckReset.IsZero() {
		user.LastCheckReset = now
	}
	user.IsActive = true

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Username, user.FirstName, user.LastName, user.LanguageCode,
		user.ChecksUsed, user.ChecksLimit, user.BonusChecks, user.LastCheckReset,
		user.ReferralCode, user.ReferredBy, user.TotalReferrals,
		user.IsActive, user.CreatedAt, user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("ошибка создания пользователя: %w", err)
	}

	r.logger.Info("пользователь создан",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.Username))

	return nil
}

// GetByID получает пользователя по Telegram ID
func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя по ID: %w", err)
	}

	return user, nil
}

// Update обновляет пользователя
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET username = $2, first_name = $3, last_name = $4, language_code = $5,
		    checks_used = $6, checks_limit = $7, bonus_checks = $8, last_check_reset = $9,
		    referral_code = $10, referred_by = $11, total_referrals = $12,
		    is_active = $13, updated_at = $14
		WHERE id = $1`

	user.UpdatedAt = time.Now()

	result, err := r.db.Exec(ctx, query,
		user.ID, user.Username, user.FirstName, user.LastName, user.LanguageCode,
		user.ChecksUsed, user.ChecksLimit, user.BonusChecks, user.LastCheckReset,
		user.ReferralCode, user.ReferredBy, user.TotalReferrals,
		user.IsActive, user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("ошибка обновления пользователя: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("пользователь с ID %d не найден", user.ID)
	}

	return nil
}

// GetByReferralCode получает пользователя по реферальному коду
func (r *userRepository) GetByReferralCode(ctx context.Context, code string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE referral_code = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения пользователя по реферальному коду: %w", err)
	}

	return user, nil
}

// SetReferralCode присваивает пользователю реферальный код.
// Уникальность кода гарантируется ограничением в базе данных.
func (r *userRepository) SetReferralCode(ctx context.Context, userID int64, code string) error {
	query := `UPDATE users SET referral_code = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, userID, code, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка присвоения реферального кода: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("пользователь с ID %d не найден", userID)
	}

	return nil
}

// SetReferredBy условно устанавливает referred_by: запись происходит только
// если поле еще не заполнено. Возвращает true, если запись произошла.
func (r *userRepository) SetReferredBy(ctx context.Context, userID, referrerID int64) (bool, error) {
	query := `
		UPDATE users
		SET referred_by = $2, updated_at = $3
		WHERE id = $1 AND referred_by IS NULL`

	result, err := r.db.Exec(ctx, query, userID, referrerID, time.Now())
	if err != nil {
		return false, fmt.Errorf("ошибка установки referred_by: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// AddReferralBonus атомарно начисляет рефереру счетчик приглашений и бонусные проверки
func (r *userRepository) AddReferralBonus(ctx context.Context, referrerID int64, bonusChecks int) error {
	query := `
		UPDATE users
		SET total_referrals = total_referrals + 1,
		    bonus_checks = bonus_checks + $2,
		    updated_at = $3
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query, referrerID, bonusChecks, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка начисления реферального бонуса: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("реферер с ID %d не найден", referrerID)
	}

	r.logger.Info("реферальный бонус начислен",
		zap.Int64("referrer_id", referrerID),
		zap.Int("bonus_checks", bonusChecks))

	return nil
}

// ResetChecksIfDue сбрасывает счетчик проверок, если окно лимита истекло.
// Условие last_check_reset < cutoff гарантирует, что из нескольких
// конкурентных вызовов сброс выполнит только один.
func (r *userRepository) ResetChecksIfDue(ctx context.Context, userID int64, cutoff, now time.Time) (bool, error) {
	query := `
		UPDATE users
		SET checks_used = 0, last_check_reset = $3, updated_at = $3
		WHERE id = $1 AND last_check_reset < $2`

	result, err := r.db.Exec(ctx, query, userID, cutoff, now)
	if err != nil {
		return false, fmt.Errorf("ошибка сброса счетчика проверок: %w", err)
	}

	reset := result.RowsAffected() == 1
	if reset {
		r.logger.Info("окно лимита проверок сброшено",
			zap.Int64("user_id", userID),
			zap.Time("reset_at", now))
	}

	return reset, nil
}

// ConsumeCheck атомарно расходует одну проверку: инкремент проходит только
// пока счетчик меньше суммарного лимита. Возвращает true, если проверка
// была списана.
func (r *userRepository) ConsumeCheck(ctx context.Context, userID int64) (bool, error) {
	query := `
		UPDATE users
		SET checks_used = checks_used + 1, updated_at = $2
		WHERE id = $1 AND checks_used < checks_limit + bonus_checks`

	result, err := r.db.Exec(ctx, query, userID, time.Now())
	if err != nil {
		return false, fmt.Errorf("ошибка списания проверки: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// ListByAudience получает пользователей по селектору аудитории рассылки.
// Неизвестный селектор трактуется как all.
func (r *userRepository) ListByAudience(ctx context.Context, audience string) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`

	switch audience {
	case models.AudienceActive:
		query += ` WHERE is_active = TRUE`
	case models.AudienceReferrers:
		query += ` WHERE total_referrals > 0`
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения аудитории рассылки: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования пользователя: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

// SetActive изменяет флаг активности пользователя
func (r *userRepository) SetActive(ctx context.Context, userID int64, active bool) error {
	query := `UPDATE users SET is_active = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, userID, active, time.Now())
	if err != nil {
		return fmt.Errorf("ошибка обновления флага активности: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("пользователь с ID %d не найден", userID)
	}

	return nil
}

// DeactivateInactive снимает флаг активности у пользователей, не появлявшихся
// с указанного момента. Возвращает количество деактивированных.
func (r *userRepository) DeactivateInactive(ctx context.Context, inactiveSince time.Time) (int64, error) {
	query := `
		UPDATE users
		SET is_active = FALSE, updated_at = $2
		WHERE is_active = TRUE AND updated_at < $1`

	result, err := r.db.Exec(ctx, query, inactiveSince, time.Now())
	if err != nil {
		return 0, fmt.Errorf("ошибка деактивации неактивных пользователей: %w", err)
	}

	count := result.RowsAffected()
	if count > 0 {
		r.logger.Info("деактивированы неактивные пользователи",
			zap.Int64("count", count),
			zap.Time("inactive_since", inactiveSince))
	}

	return count, nil
}
