package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spookmail-bot/internal/config"
	"spookmail-bot/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNotFound возвращается, когда запись не найдена
var ErrNotFound = errors.New("запись не найдена")

// Store представляет интерфейс для работы с базой данных
type Store interface {
	User() UserRepository
	Check() CheckRepository
	Broadcast() BroadcastRepository
	Stats() StatsRepository
	DB() *pgxpool.Pool
	Close() error
}

// store реализует интерфейс Store
type store struct {
	db        *pgxpool.Pool
	logger    *zap.Logger
	user      UserRepository
	check     CheckRepository
	broadcast BroadcastRepository
	stats     StatsRepository
}

// UserRepository интерфейс для работы с пользователями
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	GetByReferralCode(ctx context.Context, code string) (*models.User, error)
	SetReferralCode(ctx context.Context, userID int64, code string) error
	SetReferredBy(ctx context.Context, userID, referrerID int64) (bool, error)
	AddReferralBonus(ctx context.Context, referrerID int64, bonusChecks int) error
	ResetChecksIfDue(ctx context.Context, userID int64, cutoff, now time.Time) (bool, error)
	ConsumeCheck(ctx context.Context, userID int64) (bool, error)
	ListByAudience(ctx context.Context, audience string) ([]*models.User, error)
	SetActive(ctx context.Context, userID int64, active bool) error
	DeactivateInactive(ctx context.Context, inactiveSince time.Time) (int64, error)
}

// CheckRepository интерфейс для работы с проверками email
type CheckRepository interface {
	Create(ctx context.Context, check *models.EmailCheck) error
	GetByUserID(ctx context.Context, userID int64, limit int) ([]*models.EmailCheck, error)
	CountSince(ctx context.Context, userID int64, since time.Time) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// BroadcastRepository интерфейс для работы с рассылками
type BroadcastRepository interface {
	Create(ctx context.Context, broadcast *models.Broadcast) error
	GetByID(ctx context.Context, id int64) (*models.Broadcast, error)
	GetDue(ctx context.Context, now time.Time) ([]*models.Broadcast, error)
	MarkSending(ctx context.Context, id int64, sentAt time.Time) error
	UpdateProgress(ctx context.Context, id int64, sentCount int) error
	Finish(ctx context.Context, id int64, status string, sentCount, totalTargets int) error
	Delete(ctx context.Context, id int64) error
}

// StatsRepository интерфейс для работы с дневной статистикой
type StatsRepository interface {
	IncrementToday(ctx context.Context, field string, amount int) error
	GetRange(ctx context.Context, from, to time.Time) ([]*models.DailyStats, error)
	GetLatest(ctx context.Context) (*models.DailyStats, error)
}

// NewStore создает новое подключение к базе данных
func NewStore(cfg *config.Config, logger *zap.Logger) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Создание пула подключений
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	// Настройка пула
	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	// Создание пула
	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %w", err)
	}

	// Проверка подключения
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ошибка проверки подключения к базе данных: %w", err)
	}

	logger.Info("успешное подключение к базе данных PostgreSQL")

	s := &store{
		db:     db,
		logger: logger,
	}

	// Инициализация репозиториев
	s.user = NewUserRepository(db, logger)
	s.check = NewCheckRepository(db, logger)
	s.broadcast = NewBroadcastRepository(db, logger)
	s.stats = NewStatsRepository(db, logger)

	return s, nil
}

// User возвращает репозиторий пользователей
func (s *store) User() UserRepository {
	return s.user
}

// Check возвращает репозиторий проверок email
func (s *store) Check() CheckRepository {
	return s.check
}

// Broadcast возвращает репозиторий рассылок
func (s *store) Broadcast() BroadcastRepository {
	return s.broadcast
}

// Stats возвращает репозиторий дневной статистики
func (s *store) Stats() StatsRepository {
	return s.stats
}

// DB возвращает подключение к базе данных
func (s *store) DB() *pgxpool.Pool {
	return s.db
}

// Close закрывает подключение к базе данных
func (s *store) Close() error {
	s.logger.Info("закрытие подключения к базе данных")
	s.db.Close()
	return nil
}
