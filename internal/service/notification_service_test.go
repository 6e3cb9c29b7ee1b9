package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/minhtc/capstone-hub-api/internal/models"
	appErrors "github.com/minhtc/capstone-hub-api/pkg/errors"
)

type notificationRepoStub struct {
	mu         sync.Mutex
	stored     []models.Notification
	unread     int
	markedRead []string
	markErr    error
}

func (s *notificationRepoStub) Create(ctx context.Context, notification *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stored = append(s.stored, *notification)
	return nil
}

func (s *notificationRepoStub) FindByUser(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0, len(s.stored))
	for _, n := range s.stored {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (s *notificationRepoStub) CountUnread(ctx context.Context, userID string) (int, error) {
	return s.unread, nil
}

func (s *notificationRepoStub) MarkRead(ctx context.Context, id, userID string) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.markedRead = append(s.markedRead, id)
	return nil
}

func (s *notificationRepoStub) MarkAllRead(ctx context.Context, userID string) error {
	return nil
}

func (s *notificationRepoStub) storedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stored)
}

func TestNotifyDeliversThroughQueue(t *testing.T) {
	repo := &notificationRepoStub{}
	service := NewNotificationService(repo, 1, zap.NewNop())
	service.Start(context.Background())

	service.Notify("user-1", "Topic Approved", "Your topic SP26-SE001 has been approved.", "/topics/topic-1")
	require.Eventually(t, func() bool {
		return repo.storedCount() == 1
	}, time.Second, 10*time.Millisecond)
	service.Stop()

	notifications, err := service.List(context.Background(), "user-1", false)
	require.NoError(t, err)
	require.Len(t, notifications, 1)
	assert.Equal(t, "Topic Approved", notifications[0].Title)
	assert.Equal(t, "/topics/topic-1", notifications[0].Link)
}

func TestNotifyFanOutAcrossWorkers(t *testing.T) {
	repo := &notificationRepoStub{}
	service := NewNotificationService(repo, 2, zap.NewNop())
	service.Start(context.Background())
	defer service.Stop()

	for i := 0; i < 5; i++ {
		service.Notify("user-1", "Ping", "message", "")
	}
	require.Eventually(t, func() bool {
		return repo.storedCount() == 5
	}, time.Second, 10*time.Millisecond)
}

func TestMarkReadNotFound(t *testing.T) {
	repo := &notificationRepoStub{markErr: sql.ErrNoRows}
	service := NewNotificationService(repo, 1, zap.NewNop())

	err := service.MarkRead(context.Background(), "missing", "user-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCountUnread(t *testing.T) {
	repo := &notificationRepoStub{unread: 3}
	service := NewNotificationService(repo, 1, zap.NewNop())

	count, err := service.CountUnread(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
