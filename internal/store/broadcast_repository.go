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

const broadcastColumns = `id, title, message, message_type, media_url, target_audience,
	       status, sent_count, total_targets, scheduled_at, sent_at, created_at`

// broadcastRepository реализует BroadcastRepository
type broadcastRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewBroadcastRepository создает новый репозиторий рассылок
func NewBroadcastRepository(db *pgxpool.Pool, logger *zap.Logger) BroadcastRepository {
	return &broadcastRepository{
		db:     db,
		logger: logger,
	}
}

func scanBroadcast(row pgx.Row) (*models.Broadcast, error) {
	b := &models.Broadcast{}
	err := row.Scan(
		&b.ID, &b.Title, &b.Message, &b.MessageType, &b.MediaURL, &b.TargetAudience,
		&b.Status, &b.SentCount, &b.TotalTargets, &b.ScheduledAt, &b.SentAt, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Create создает новую рассылку в статусе draft
func (r *broadcastRepository) Create(ctx context.Context, broadcast *models.Broadcast) error {
	query := `
		INSERT INTO broadcasts (title, message, message_type, media_url, target_audience, status, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	broadcast.CreatedAt = time.Now()
	if broadcast.Status == "" {
		broadcast.Status = models.BroadcastStatusDraft
	}
	if broadcast.MessageType == "" {
		broadcast.MessageType = models.MessageTypeText
	}
	if broadcast.TargetAudience == "" {
		broadcast.TargetAudience = models.AudienceAll
	}

	err := r.db.QueryRow(ctx, query,
		broadcast.Title, broadcast.Message, broadcast.MessageType, broadcast.MediaURL,
		broadcast.TargetAudience, broadcast.Status, broadcast.ScheduledAt, broadcast.CreatedAt,
	).Scan(&broadcast.ID)

	if err != nil {
		return fmt.Errorf("ошибка создания рассылки: %w", err)
	}

	r.logger.Info("рассылка создана",
		zap.Int64("broadcast_id", broadcast.ID),
		zap.String("title", broadcast.Title),
		zap.String("target_audience", broadcast.TargetAudience))

	return nil
}

// GetByID получает рассылку по ID
func (r *broadcastRepository) GetByID(ctx context.Context, id int64) (*models.Broadcast, error) {
	query := `SELECT ` + broadcastColumns + ` FROM broadcasts WHERE id = $1`

	b, err := scanBroadcast(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения рассылки: %w", err)
	}

	return b, nil
}

// GetDue получает черновики рассылок, время запуска которых наступило
func (r *broadcastRepository) GetDue(ctx context.Context, now time.Time) ([]*models.Broadcast, error) {
	query := `SELECT ` + broadcastColumns + `
		FROM broadcasts
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at`

	rows, err := r.db.Query(ctx, query, models.BroadcastStatusDraft, now)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения запланированных рассылок: %w", err)
	}
	defer rows.Close()

	var broadcasts []*models.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования рассылки: %w", err)
		}
		broadcasts = append(broadcasts, b)
	}

	return broadcasts, rows.Err()
}

// MarkSending переводит рассылку в статус sending и фиксирует время запуска
func (r *broadcastRepository) MarkSending(ctx context.Context, id int64, sentAt time.Time) error {
	query := `UPDATE broadcasts SET status = $2, sent_at = $3 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, models.BroadcastStatusSending, sentAt)
	if err != nil {
		return fmt.Errorf("ошибка перевода рассылки в статус sending: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("рассылка с ID %d не найдена", id)
	}

	return nil
}

// UpdateProgress сохраняет промежуточный счетчик отправленных сообщений
func (r *broadcastRepository) UpdateProgress(ctx context.Context, id int64, sentCount int) error {
	query := `UPDATE broadcasts SET sent_count = $2 WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, sentCount)
	if err != nil {
		return fmt.Errorf("ошибка сохранения прогресса рассылки: %w", err)
	}

	return nil
}

// Finish записывает финальный статус и итоговые счетчики рассылки
func (r *broadcastRepository) Finish(ctx context.Context, id int64, status string, sentCount, totalTargets int) error {
	query := `UPDATE broadcasts SET status = $2, sent_count = $3, total_targets = $4 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, status, sentCount, totalTargets)
	if err != nil {
		return fmt.Errorf("ошибка завершения рассылки: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("рассылка с ID %d не найдена", id)
	}

	r.logger.Info("рассылка завершена",
		zap.Int64("broadcast_id", id),
		zap.String("status", status),
		zap.Int("sent_count", sentCount),
		zap.Int("total_targets", totalTargets))

	return nil
}

// Delete удаляет рассылку
func (r *broadcastRepository) Delete(ctx context.Context, id int64) error {
	query := `DELETE FROM broadcasts WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления рассылки: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("рассылка с ID %d не найдена", id)
	}

	return nil
}
