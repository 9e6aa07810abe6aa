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

// statsFields содержит разрешенные для инкремента колонки дневной статистики.
// Имя колонки подставляется в запрос, поэтому значения извне не допускаются.
var statsFields = map[string]bool{
	models.StatNewUsers:      true,
	models.StatTotalChecks:   true,
	models.StatValidEmails:   true,
	models.StatInvalidEmails: true,
	models.StatNewReferrals:  true,
}

// statsRepository реализует StatsRepository
type statsRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewStatsRepository создает новый репозиторий дневной статистики
func NewStatsRepository(db *pgxpool.Pool, logger *zap.Logger) StatsRepository {
	return &statsRepository{
		db:     db,
		logger: logger,
	}
}

// IncrementToday увеличивает счетчик за сегодняшний день.
// Строка за день создается лениво при первом инкременте.
func (r *statsRepository) IncrementToday(ctx context.Context, field string, amount int) error {
	if !statsFields[field] {
		return fmt.Errorf("неизвестное поле статистики: %s", field)
	}

	today := time.Now().Truncate(24 * time.Hour)

	query := fmt.Sprintf(`
		INSERT INTO daily_stats (date, %s)
		VALUES ($1, $2)
		ON CONFLICT (date) DO UPDATE SET %s = daily_stats.%s + $2`,
		field, field, field)

	_, err := r.db.Exec(ctx, query, today, amount)
	if err != nil {
		return fmt.Errorf("ошибка инкремента дневной статистики: %w", err)
	}

	r.logger.Debug("дневная статистика обновлена",
		zap.String("field", field),
		zap.Int("amount", amount))

	return nil
}

// GetRange получает статистику за диапазон дат
func (r *statsRepository) GetRange(ctx context.Context, from, to time.Time) ([]*models.DailyStats, error) {
	query := `
		SELECT id, date, new_users, total_checks, valid_emails, invalid_emails, new_referrals
		FROM daily_stats
		WHERE date >= $1 AND date <= $2
		ORDER BY date DESC`

	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики за период: %w", err)
	}
	defer rows.Close()

	var stats []*models.DailyStats
	for rows.Next() {
		s := &models.DailyStats{}
		err := rows.Scan(&s.ID, &s.Date, &s.NewUsers, &s.TotalChecks, &s.ValidEmails, &s.InvalidEmails, &s.NewReferrals)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики: %w", err)
		}
		stats = append(stats, s)
	}

	return stats, rows.Err()
}

// GetLatest получает статистику за последний день
func (r *statsRepository) GetLatest(ctx context.Context) (*models.DailyStats, error) {
	query := `
		SELECT id, date, new_users, total_checks, valid_emails, invalid_emails, new_referrals
		FROM daily_stats
		ORDER BY date DESC
		LIMIT 1`

	s := &models.DailyStats{}
	err := r.db.QueryRow(ctx, query).Scan(
		&s.ID, &s.Date, &s.NewUsers, &s.TotalChecks, &s.ValidEmails, &s.InvalidEmails, &s.NewReferrals,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения последней статистики: %w", err)
	}

	return s, nil
}
