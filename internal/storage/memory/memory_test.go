package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fluxline/session-service/internal/models"
	"github.com/fluxline/session-service/internal/storage"
)

func newUser(email string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newToken(userID uuid.UUID, hash string, ttl time.Duration) *models.RefreshToken {
	now := time.Now().UTC()
	return &models.RefreshToken{
		TokenHash: hash,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestUsers_SaveAndLookup(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	u := newUser("user@example.com")
	require.NoError(t, st.SaveUser(ctx, u))

	got, err := st.UserByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	got, err = st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)

	_, err = st.UserByEmail(ctx, "missing@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.UserByID(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestUsers_DuplicateEmail(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	require.NoError(t, st.SaveUser(ctx, newUser("dup@example.com")))
	err := st.SaveUser(ctx, newUser("dup@example.com"))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestUsers_LookupReturnsCopy(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	u := newUser("copy@example.com")
	require.NoError(t, st.SaveUser(ctx, u))

	got, err := st.UserByEmail(ctx, u.Email)
	require.NoError(t, err)
	got.Email = "mutated@example.com"

	again, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "copy@example.com", again.Email)
}

func TestLockout_Counters(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	u := newUser("lock@example.com")
	require.NoError(t, st.SaveUser(ctx, u))

	n, err := st.IncrementFailedAttempts(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = st.IncrementFailedAttempts(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	until := time.Now().UTC().Add(time.Hour)
	require.NoError(t, st.SetLockedUntil(ctx, u.ID, until))

	got, err := st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LockedUntil)
	require.True(t, got.LockedUntil.Equal(until))

	require.NoError(t, st.ResetLockout(ctx, u.ID))

	got, err = st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, got.FailedAttempts)
	require.Nil(t, got.LockedUntil)

	_, err = st.IncrementFailedAttempts(ctx, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRefreshTokens_ConsumeOnce(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	u := newUser("user@example.com")
	require.NoError(t, st.SaveUser(ctx, u))
	require.NoError(t, st.SaveRefreshToken(ctx, newToken(u.ID, "hash-1", time.Hour)))

	now := time.Now().UTC()

	ok, err := st.ConsumeRefreshToken(ctx, "hash-1", now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.ConsumeRefreshToken(ctx, "hash-1", now)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = st.ConsumeRefreshToken(ctx, "missing", now)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRefreshTokens_ConsumeIsAtomic(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	u := newUser("race@example.com")
	require.NoError(t, st.SaveUser(ctx, u))
	require.NoError(t, st.SaveRefreshToken(ctx, newToken(u.ID, "hash-race", time.Hour)))

	const workers = 16
	var wg sync.WaitGroup
	wins := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.ConsumeRefreshToken(ctx, "hash-race", time.Now().UTC())
			wins <- ok && err == nil
		}()
	}
	wg.Wait()
	close(wins)

	var total int
	for ok := range wins {
		if ok {
			total++
		}
	}
	require.Equal(t, 1, total)
}

func TestRefreshTokens_MarkAllUsedForUser(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	u := newUser("revoke@example.com")
	other := newUser("other@example.com")
	require.NoError(t, st.SaveUser(ctx, u))
	require.NoError(t, st.SaveUser(ctx, other))

	require.NoError(t, st.SaveRefreshToken(ctx, newToken(u.ID, "hash-a", time.Hour)))
	require.NoError(t, st.SaveRefreshToken(ctx, newToken(u.ID, "hash-b", time.Hour)))
	require.NoError(t, st.SaveRefreshToken(ctx, newToken(other.ID, "hash-c", time.Hour)))

	n, err := st.MarkAllUsedForUser(ctx, u.ID, time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	got, err := st.RefreshTokenByHash(ctx, "hash-c")
	require.NoError(t, err)
	require.Nil(t, got.UsedAt)
}

func TestRefreshTokens_DeleteExpired(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	u := newUser("janitor@example.com")
	require.NoError(t, st.SaveUser(ctx, u))

	require.NoError(t, st.SaveRefreshToken(ctx, newToken(u.ID, "hash-live", time.Hour)))
	require.NoError(t, st.SaveRefreshToken(ctx, newToken(u.ID, "hash-dead", -time.Minute)))

	require.NoError(t, st.DeleteExpiredTokens(ctx, time.Now().UTC()))

	_, err := st.RefreshTokenByHash(ctx, "hash-dead")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.RefreshTokenByHash(ctx, "hash-live")
	require.NoError(t, err)
}

func TestRefreshTokens_DuplicateHash(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	u := newUser("dup-token@example.com")
	require.NoError(t, st.SaveUser(ctx, u))

	require.NoError(t, st.SaveRefreshToken(ctx, newToken(u.ID, "hash-x", time.Hour)))
	err := st.SaveRefreshToken(ctx, newToken(u.ID, "hash-x", time.Hour))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}
