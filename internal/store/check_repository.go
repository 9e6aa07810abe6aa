package store

import (
	"context"
	"fmt"
	"time"

	"spookmail-bot/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// checkRepository реализует CheckRepository
type checkRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewCheckRepository создает новый репозиторий проверок email
func NewCheckRepository(db *pgxpool.Pool, logger *zap.Logger) CheckRepository {
	return &checkRepository{
		db:     db,
		logger: logger,
	}
}

// Create сохраняет выполненную проверку email
func (r *checkRepository) Create(ctx context.Context, check *models.EmailCheck) error {
	query := `
		INSERT INTO email_checks (user_id, email, is_valid, is_disposable, is_catchall, quality_score, raw_response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	check.CreatedAt = time.Now()

	err := r.db.QueryRow(ctx, query,
		check.UserID, check.Email, check.IsValid, check.IsDisposable,
		check.IsCatchall, check.QualityScore, check.RawResponse, check.CreatedAt,
	).Scan(&check.ID)

	if err != nil {
		return fmt.Errorf("ошибка сохранения проверки email: %w", err)
	}

	return nil
}

// GetByUserID получает последние проверки пользователя
func (r *checkRepository) GetByUserID(ctx context.Context, userID int64, limit int) ([]*models.EmailCheck, error) {
	query := `
		SELECT id, user_id, email, is_valid, is_disposable, is_catchall, quality_score, raw_response, created_at
		FROM email_checks
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения проверок пользователя: %w", err)
	}
	defer rows.Close()

	var checks []*models.EmailCheck
	for rows.Next() {
		check := &models.EmailCheck{}
		err := rows.Scan(
			&check.ID, &check.UserID, &check.Email, &check.IsValid, &check.IsDisposable,
			&check.IsCatchall, &check.QualityScore, &check.RawResponse, &check.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования проверки: %w", err)
		}
		checks = append(checks, check)
	}

	return checks, rows.Err()
}

// CountSince подсчитывает количество проверок пользователя с указанного момента
func (r *checkRepository) CountSince(ctx context.Context, userID int64, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM email_checks WHERE user_id = $1 AND created_at >= $2`

	var count int
	err := r.db.QueryRow(ctx, query, userID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета проверок: %w", err)
	}

	return count, nil
}

// CountOlderThan подсчитывает количество проверок старше указанной даты
func (r *checkRepository) CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM email_checks WHERE created_at < $1`

	var count int64
	err := r.db.QueryRow(ctx, query, cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета старых проверок: %w", err)
	}

	return count, nil
}

// DeleteOlderThan удаляет проверки старше указанной даты
func (r *checkRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM email_checks WHERE created_at < $1`

	result, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления старых проверок: %w", err)
	}

	deleted := result.RowsAffected()
	r.logger.Info("удалены старые проверки email",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff))

	return deleted, nil
}
