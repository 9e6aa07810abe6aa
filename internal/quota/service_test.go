package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spookmail-bot/pkg/models"
)

// fakeUserRepo реализует UserRepository в памяти с теми же условными
// семантиками обновлений, что и Postgres-репозиторий
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[int64]*models.User
}

func newFakeUserRepo(users ...*models.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[int64]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u := *f.users[id]
	return &u, nil
}

func (f *fakeUserRepo) ResetChecksIfDue(_ context.Context, userID int64, cutoff, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u := f.users[userID]
	if !u.LastCheckReset.Before(cutoff) {
		return false, nil
	}
	u.ChecksUsed = 0
	u.LastCheckReset = now
	return true, nil
}

func (f *fakeUserRepo) ConsumeCheck(_ context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	u := f.users[userID]
	if u.ChecksUsed >= u.ChecksLimit+u.BonusChecks {
		return false, nil
	}
	u.ChecksUsed++
	return true, nil
}

func newTestService(repo *fakeUserRepo, cycle time.Duration, now time.Time) *Service {
	s := NewService(repo, cycle, zap.NewNop())
	s.now = func() time.Time { return now }
	return s
}

func TestTryConsumeResetsExpiredWindow(t *testing.T) {
	now := time.Now()

	// Лимит исчерпан, но окно открыто 73 часа назад при цикле 72 часа
	user := &models.User{
		ID:             1,
		ChecksUsed:     5,
		ChecksLimit:    5,
		BonusChecks:    0,
		LastCheckReset: now.Add(-73 * time.Hour),
	}
	repo := newFakeUserRepo(user)
	service := newTestService(repo, 72*time.Hour, now)

	allowed, err := service.TryConsume(context.Background(), 1)

	require.NoError(t, err)
	assert.True(t, allowed)

	// После сброса и списания счетчик равен 1
	updated, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, 1, updated.ChecksUsed)
	assert.Equal(t, now, updated.LastCheckReset)
}

func TestTryConsumeDeniesInsideWindow(t *testing.T) {
	now := time.Now()

	// Лимит исчерпан, окно открыто всего 10 часов назад
	user := &models.User{
		ID:             1,
		ChecksUsed:     5,
		ChecksLimit:    5,
		BonusChecks:    0,
		LastCheckReset: now.Add(-10 * time.Hour),
	}
	repo := newFakeUserRepo(user)
	service := newTestService(repo, 72*time.Hour, now)

	allowed, err := service.TryConsume(context.Background(), 1)

	require.NoError(t, err)
	assert.False(t, allowed)

	// Счетчик не изменился
	updated, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, 5, updated.ChecksUsed)
}

func TestTryConsumeExactDeadlineNotReset(t *testing.T) {
	now := time.Now()

	// Ровно на границе окна сброс еще не наступил: сравнение строгое
	user := &models.User{
		ID:             1,
		ChecksUsed:     5,
		ChecksLimit:    5,
		BonusChecks:    0,
		LastCheckReset: now.Add(-72 * time.Hour),
	}
	repo := newFakeUserRepo(user)
	service := newTestService(repo, 72*time.Hour, now)

	allowed, err := service.TryConsume(context.Background(), 1)

	require.NoError(t, err)
	assert.False(t, allowed)

	updated, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, 5, updated.ChecksUsed)
	assert.Equal(t, now.Add(-72*time.Hour), updated.LastCheckReset)
}

func TestTryConsumeQuotaArithmetic(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		checksUsed  int
		checksLimit int
		bonusChecks int
		wantAllowed bool
	}{
		{
			name:        "есть базовые проверки",
			checksUsed:  2,
			checksLimit: 5,
			wantAllowed: true,
		},
		{
			name:        "базовый лимит исчерпан, есть бонусные",
			checksUsed:  5,
			checksLimit: 5,
			bonusChecks: 5,
			wantAllowed: true,
		},
		{
			name:        "исчерпан весь лимит с бонусами",
			checksUsed:  10,
			checksLimit: 5,
			bonusChecks: 5,
			wantAllowed: false,
		},
		{
			name:        "последняя доступная проверка",
			checksUsed:  9,
			checksLimit: 5,
			bonusChecks: 5,
			wantAllowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := &models.User{
				ID:             1,
				ChecksUsed:     tt.checksUsed,
				ChecksLimit:    tt.checksLimit,
				BonusChecks:    tt.bonusChecks,
				LastCheckReset: now,
			}
			repo := newFakeUserRepo(user)
			service := newTestService(repo, 72*time.Hour, now)

			allowed, err := service.TryConsume(context.Background(), 1)

			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, allowed)

			updated, _ := repo.GetByID(context.Background(), 1)
			if tt.wantAllowed {
				assert.Equal(t, tt.checksUsed+1, updated.ChecksUsed)
			} else {
				assert.Equal(t, tt.checksUsed, updated.ChecksUsed)
			}
		})
	}
}

func TestTryConsumeConcurrentNeverExceedsLimit(t *testing.T) {
	now := time.Now()

	user := &models.User{
		ID:             1,
		ChecksUsed:     0,
		ChecksLimit:    5,
		BonusChecks:    2,
		LastCheckReset: now,
	}
	repo := newFakeUserRepo(user)
	service := newTestService(repo, 72*time.Hour, now)

	// Конкурентные списания: разрешено должно быть ровно limit+bonus
	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowedCount := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed, err := service.TryConsume(context.Background(), 1)
			assert.NoError(t, err)
			if allowed {
				mu.Lock()
				allowedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 7, allowedCount)

	updated, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, 7, updated.ChecksUsed)
}

func TestSnapshot(t *testing.T) {
	now := time.Now()

	t.Run("внутри окна", func(t *testing.T) {
		user := &models.User{
			ID:             1,
			ChecksUsed:     3,
			ChecksLimit:    5,
			BonusChecks:    5,
			LastCheckReset: now.Add(-10 * time.Hour),
		}
		repo := newFakeUserRepo(user)
		service := newTestService(repo, 72*time.Hour, now)

		remaining, nextReset, err := service.Snapshot(context.Background(), 1)

		require.NoError(t, err)
		assert.Equal(t, 7, remaining)
		assert.Equal(t, now.Add(62*time.Hour), nextReset)
	})

	t.Run("окно истекло", func(t *testing.T) {
		user := &models.User{
			ID:             1,
			ChecksUsed:     5,
			ChecksLimit:    5,
			BonusChecks:    0,
			LastCheckReset: now.Add(-80 * time.Hour),
		}
		repo := newFakeUserRepo(user)
		service := newTestService(repo, 72*time.Hour, now)

		remaining, _, err := service.Snapshot(context.Background(), 1)

		require.NoError(t, err)
		assert.Equal(t, 5, remaining)
	})
}
