package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"spookmail-bot/internal/store"
	"spookmail-bot/pkg/models"
)

// fakeBroadcastRepo хранит рассылки в памяти и записывает историю статусов
type fakeBroadcastRepo struct {
	mu              sync.Mutex
	broadcasts      map[int64]*models.Broadcast
	markSendingErr  error
	progressUpdates []int
}

func newFakeBroadcastRepo(broadcasts ...*models.Broadcast) *fakeBroadcastRepo {
	repo := &fakeBroadcastRepo{broadcasts: make(map[int64]*models.Broadcast)}
	for _, b := range broadcasts {
		repo.broadcasts[b.ID] = b
	}
	return repo
}

func (f *fakeBroadcastRepo) GetByID(_ context.Context, id int64) (*models.Broadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.broadcasts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBroadcastRepo) MarkSending(_ context.Context, id int64, sentAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.markSendingErr != nil {
		return f.markSendingErr
	}
	b := f.broadcasts[id]
	b.Status = models.BroadcastStatusSending
	b.SentAt = &sentAt
	return nil
}

func (f *fakeBroadcastRepo) UpdateProgress(_ context.Context, id int64, sentCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.broadcasts[id].SentCount = sentCount
	f.progressUpdates = append(f.progressUpdates, sentCount)
	return nil
}

func (f *fakeBroadcastRepo) Finish(_ context.Context, id int64, status string, sentCount, totalTargets int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	b := f.broadcasts[id]
	b.Status = status
	b.SentCount = sentCount
	b.TotalTargets = totalTargets
	return nil
}

// fakeUserRepo возвращает фиксированную аудиторию
type fakeUserRepo struct {
	users        []*models.User
	lastAudience string
}

func (f *fakeUserRepo) ListByAudience(_ context.Context, audience string) ([]*models.User, error) {
	f.lastAudience = audience
	return f.users, nil
}

// fakeSender имитирует отправку сообщений с настраиваемыми сбоями
type fakeSender struct {
	mu        sync.Mutex
	sent      []int64
	failIDs   map[int64]bool
	sendDelay time.Duration
}

func (f *fakeSender) SendBroadcastMessage(ctx context.Context, chatID int64, _ *models.Broadcast) error {
	if f.sendDelay > 0 {
		select {
		case <-time.After(f.sendDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failIDs[chatID] {
		return errors.New("Forbidden: bot was blocked by the user")
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func makeUsers(n int) []*models.User {
	users := make([]*models.User, 0, n)
	for i := 1; i <= n; i++ {
		users = append(users, &models.User{ID: int64(i)})
	}
	return users
}

func newTestService(broadcastRepo *fakeBroadcastRepo, userRepo *fakeUserRepo, sender *fakeSender, progressInterval int) *Service {
	return NewService(broadcastRepo, userRepo, sender, time.Millisecond, progressInterval, zap.NewNop())
}

func TestRunCompletesAndTalliesFailures(t *testing.T) {
	broadcast := &models.Broadcast{ID: 1, Title: "тест", TargetAudience: models.AudienceAll}
	repo := newFakeBroadcastRepo(broadcast)
	userRepo := &fakeUserRepo{users: makeUsers(10)}

	// Трое получателей заблокировали бота
	sender := &fakeSender{failIDs: map[int64]bool{3: true, 6: true, 9: true}}
	service := newTestService(repo, userRepo, sender, 25)

	result, err := service.Run(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 7, result.Sent)
	assert.Equal(t, 3, result.Failed)

	finished, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, models.BroadcastStatusCompleted, finished.Status)
	assert.Equal(t, 7, finished.SentCount)
	assert.Equal(t, 10, finished.TotalTargets)
	assert.Equal(t, models.AudienceAll, userRepo.lastAudience)
}

func TestRunPersistsProgress(t *testing.T) {
	broadcast := &models.Broadcast{ID: 1, TargetAudience: models.AudienceAll}
	repo := newFakeBroadcastRepo(broadcast)
	userRepo := &fakeUserRepo{users: makeUsers(7)}
	sender := &fakeSender{}

	// Прогресс сохраняется каждые 3 успешные отправки
	service := newTestService(repo, userRepo, sender, 3)

	result, err := service.Run(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 7, result.Sent)
	assert.Equal(t, []int{3, 6}, repo.progressUpdates)
}

func TestRunCancelledMidway(t *testing.T) {
	broadcast := &models.Broadcast{ID: 1, TargetAudience: models.AudienceAll}
	repo := newFakeBroadcastRepo(broadcast)
	userRepo := &fakeUserRepo{users: makeUsers(100)}
	sender := &fakeSender{sendDelay: 5 * time.Millisecond}
	service := newTestService(repo, userRepo, sender, 25)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	result, err := service.Run(ctx, 1)

	require.NoError(t, err)
	assert.Less(t, result.Sent, 100)

	finished, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, models.BroadcastStatusCancelled, finished.Status)
	assert.Equal(t, result.Sent, finished.SentCount)
	assert.Equal(t, result.Sent+result.Failed, finished.TotalTargets)
}

func TestRunMarkSendingFailureAborts(t *testing.T) {
	broadcast := &models.Broadcast{ID: 1, TargetAudience: models.AudienceAll}
	repo := newFakeBroadcastRepo(broadcast)
	repo.markSendingErr = errors.New("база данных недоступна")
	userRepo := &fakeUserRepo{users: makeUsers(5)}
	sender := &fakeSender{}
	service := newTestService(repo, userRepo, sender, 25)

	result, err := service.Run(context.Background(), 1)

	require.Error(t, err)
	assert.Nil(t, result)
	assert.Empty(t, sender.sent)
}

func TestRunEmptyAudience(t *testing.T) {
	broadcast := &models.Broadcast{ID: 1, TargetAudience: models.AudienceReferrers}
	repo := newFakeBroadcastRepo(broadcast)
	userRepo := &fakeUserRepo{}
	sender := &fakeSender{}
	service := newTestService(repo, userRepo, sender, 25)

	result, err := service.Run(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 0, result.Failed)

	finished, _ := repo.GetByID(context.Background(), 1)
	assert.Equal(t, models.BroadcastStatusCompleted, finished.Status)
	assert.Equal(t, 0, finished.TotalTargets)
}

func TestRunUnknownBroadcast(t *testing.T) {
	repo := newFakeBroadcastRepo()
	service := newTestService(repo, &fakeUserRepo{}, &fakeSender{}, 25)

	result, err := service.Run(context.Background(), 42)

	require.Error(t, err)
	assert.Nil(t, result)
}
