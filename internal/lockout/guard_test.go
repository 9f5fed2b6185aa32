package lockout

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fluxline/session-service/internal/audit"
	"github.com/fluxline/session-service/mocks"
)

// auditSpy собирает события безопасности для проверок.
type auditSpy struct {
	mu     sync.Mutex
	events []string
}

func (s *auditSpy) Record(_ context.Context, kind string, _ uuid.UUID, _ ...slog.Attr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, kind)
}

func (s *auditSpy) kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func TestIsLocked(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	require.False(t, IsLocked(nil, now))
	require.True(t, IsLocked(&future, now))
	require.False(t, IsLocked(&past, now))
	// Граница: блокировка до now не действует в момент now.
	require.False(t, IsLocked(&now, now))
}

func TestRecordFailure_BelowThreshold(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockLockoutStorage(ctrl)
	spy := &auditSpy{}
	guard := NewGuard(st, spy, 5, 15*time.Minute)

	userID := uuid.New()
	st.EXPECT().IncrementFailedAttempts(gomock.Any(), userID).Return(3, nil)

	require.NoError(t, guard.RecordFailure(context.Background(), userID))
	require.Empty(t, spy.kinds())
}

func TestRecordFailure_AtThreshold_Locks(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockLockoutStorage(ctrl)
	spy := &auditSpy{}
	guard := NewGuard(st, spy, 5, 15*time.Minute)

	userID := uuid.New()
	st.EXPECT().IncrementFailedAttempts(gomock.Any(), userID).Return(5, nil)
	st.EXPECT().SetLockedUntil(gomock.Any(), userID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, until time.Time) error {
			require.WithinDuration(t, time.Now().UTC().Add(15*time.Minute), until, 2*time.Second)
			return nil
		})

	require.NoError(t, guard.RecordFailure(context.Background(), userID))
	require.Equal(t, []string{audit.EventAccountLocked}, spy.kinds())
}

func TestRecordFailure_AboveThreshold_ExtendsLock(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockLockoutStorage(ctrl)
	spy := &auditSpy{}
	guard := NewGuard(st, spy, 5, 15*time.Minute)

	userID := uuid.New()
	st.EXPECT().IncrementFailedAttempts(gomock.Any(), userID).Return(7, nil)
	st.EXPECT().SetLockedUntil(gomock.Any(), userID, gomock.Any()).Return(nil)

	require.NoError(t, guard.RecordFailure(context.Background(), userID))
	require.Equal(t, []string{audit.EventAccountLocked}, spy.kinds())
}

func TestRecordFailure_StorageError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockLockoutStorage(ctrl)
	guard := NewGuard(st, &auditSpy{}, 5, 15*time.Minute)

	userID := uuid.New()
	wantErr := errors.New("db down")
	st.EXPECT().IncrementFailedAttempts(gomock.Any(), userID).Return(0, wantErr)

	err := guard.RecordFailure(context.Background(), userID)
	require.ErrorIs(t, err, wantErr)
}

func TestRecordSuccess_Resets(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockLockoutStorage(ctrl)
	guard := NewGuard(st, &auditSpy{}, 5, 15*time.Minute)

	userID := uuid.New()
	st.EXPECT().ResetLockout(gomock.Any(), userID).Return(nil)

	require.NoError(t, guard.RecordSuccess(context.Background(), userID))
}
