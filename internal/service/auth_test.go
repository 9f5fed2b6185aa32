package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fluxline/session-service/internal/config"
	"github.com/fluxline/session-service/internal/lockout"
	"github.com/fluxline/session-service/internal/ratelimit"
	"github.com/fluxline/session-service/internal/refresh"
	"github.com/fluxline/session-service/internal/storage"
	"github.com/fluxline/session-service/internal/storage/memory"
	"github.com/fluxline/session-service/internal/token"
	"github.com/fluxline/session-service/mocks"
)

const (
	testEmail    = "user@example.com"
	testPassword = "Sup3r-secret!"
)

// nopRecorder — заглушка аудита для тестов сервиса.
type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, uuid.UUID, ...slog.Attr) {}

type svcOptions struct {
	accessTTL        time.Duration
	lockoutThreshold int
	loginLimit       int64
	refreshLimit     int64
}

func defaultOptions() svcOptions {
	return svcOptions{
		accessTTL:        15 * time.Minute,
		lockoutThreshold: 5,
		loginLimit:       100,
		refreshLimit:     100,
	}
}

// newTestService собирает Service поверх in-memory хранилища
// с настоящими коллабораторами.
func newTestService(t *testing.T, opts svcOptions) (*Service, *memory.Storage) {
	t.Helper()

	st := memory.New()

	authCfg := config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  opts.accessTTL,
		RefreshTokenTTL: time.Hour,
		Issuer:          "session-service",
		Audience:        []string{"fluxline-api"},
	}

	auditor := nopRecorder{}
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), "test")
	limiter.SetPolicy(RouteLogin, opts.loginLimit, time.Minute)
	limiter.SetPolicy(RouteRefresh, opts.refreshLimit, time.Minute)

	svc := New(
		st,
		token.NewIssuer(authCfg),
		refresh.NewStore(st, auditor, time.Hour),
		lockout.NewGuard(st, auditor, opts.lockoutThreshold, 15*time.Minute),
		limiter,
	)

	return svc, st
}

func registerTestUser(t *testing.T, svc *Service) uuid.UUID {
	t.Helper()

	_, uid, err := svc.RegisterUser(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
	return uid
}

func TestRegisterUser_OK(t *testing.T) {
	t.Parallel()

	svc, st := newTestService(t, defaultOptions())
	ctx := context.Background()

	pair, uid, err := svc.RegisterUser(ctx, "  User@Example.COM ", testPassword)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, uid)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.True(t, pair.AccessExpiresAt.After(time.Now()))

	// Email нормализован, пароль хэширован.
	user, err := st.UserByEmail(ctx, testEmail)
	require.NoError(t, err)
	require.Equal(t, uid, user.ID)
	require.NotEqual(t, testPassword, user.PasswordHash)

	// Выпущенный access-токен сразу валиден.
	got, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, uid, got)
}

func TestRegisterUser_Validation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultOptions())
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"bad email", "not-an-email", testPassword, ErrInvalidEmail},
		{"empty email", "", testPassword, ErrInvalidEmail},
		{"empty password", testEmail, "", ErrEmptyPassword},
		{"short password", testEmail, "Ab1!x", ErrWeakPassword},
		{"no uppercase", testEmail, "weak-pass1!", ErrWeakPassword},
		{"no digit", testEmail, "Weak-pass!", ErrWeakPassword},
		{"no special", testEmail, "Weakpass1", ErrWeakPassword},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, _, err := svc.RegisterUser(ctx, tc.email, tc.password)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestRegisterUser_EmailTaken(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultOptions())
	registerTestUser(t, svc)

	// Регистр не влияет: email нормализуется до сравнения.
	_, _, err := svc.RegisterUser(context.Background(), "USER@example.com", testPassword)
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestLoginUser_OK(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultOptions())
	uid := registerTestUser(t, svc)

	pair, gotUID, err := svc.LoginUser(context.Background(), testEmail, testPassword, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, uid, gotUID)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
}

func TestLoginUser_InvalidCredentials(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultOptions())
	registerTestUser(t, svc)
	ctx := context.Background()

	// Неверный пароль, неизвестный email, пустой пароль и мусорный email
	// снаружи неразличимы.
	_, _, err := svc.LoginUser(ctx, testEmail, "Wrong-pass1!", "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.LoginUser(ctx, "ghost@example.com", testPassword, "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.LoginUser(ctx, testEmail, "", "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.LoginUser(ctx, "not-an-email", testPassword, "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUser_LockoutAfterThreshold(t *testing.T) {
	t.Parallel()

	opts := defaultOptions()
	opts.lockoutThreshold = 3
	svc, st := newTestService(t, opts)
	uid := registerTestUser(t, svc)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _, err := svc.LoginUser(ctx, testEmail, "Wrong-pass1!", "10.0.0.1")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	// Порог достигнут — блокировка действует даже для верного пароля.
	_, _, err := svc.LoginUser(ctx, testEmail, testPassword, "10.0.0.1")
	require.ErrorIs(t, err, ErrAccountLocked)

	user, err := st.UserByID(ctx, uid)
	require.NoError(t, err)
	require.NotNil(t, user.LockedUntil)
}

func TestLoginUser_SuccessResetsFailures(t *testing.T) {
	t.Parallel()

	opts := defaultOptions()
	opts.lockoutThreshold = 3
	svc, st := newTestService(t, opts)
	uid := registerTestUser(t, svc)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := svc.LoginUser(ctx, testEmail, "Wrong-pass1!", "10.0.0.1")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, _, err := svc.LoginUser(ctx, testEmail, testPassword, "10.0.0.1")
	require.NoError(t, err)

	user, err := st.UserByID(ctx, uid)
	require.NoError(t, err)
	require.Zero(t, user.FailedAttempts)

	// Счётчик начат заново: две новые неудачи порога не достигают.
	for i := 0; i < 2; i++ {
		_, _, err := svc.LoginUser(ctx, testEmail, "Wrong-pass1!", "10.0.0.1")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, _, err = svc.LoginUser(ctx, testEmail, testPassword, "10.0.0.1")
	require.NoError(t, err)
}

func TestLoginUser_RateLimited(t *testing.T) {
	t.Parallel()

	opts := defaultOptions()
	opts.loginLimit = 2
	svc, _ := newTestService(t, opts)
	registerTestUser(t, svc)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _, err := svc.LoginUser(ctx, testEmail, testPassword, "10.0.0.1")
		require.NoError(t, err)
	}

	_, _, err := svc.LoginUser(ctx, testEmail, testPassword, "10.0.0.1")
	require.ErrorIs(t, err, ErrRateLimited)

	// Лимит считается на идентичность: другой ключ проходит.
	_, _, err = svc.LoginUser(ctx, testEmail, testPassword, "10.0.0.2")
	require.NoError(t, err)
}

func TestRefresh_RotatesToken(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultOptions())
	uid := registerTestUser(t, svc)
	ctx := context.Background()

	pair, _, err := svc.LoginUser(ctx, testEmail, testPassword, "10.0.0.1")
	require.NoError(t, err)

	next, gotUID, err := svc.Refresh(ctx, pair.RefreshToken, "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, uid, gotUID)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	require.NotEmpty(t, next.AccessToken)

	// Старый токен мёртв; его повторное предъявление — replay.
	_, _, err = svc.Refresh(ctx, pair.RefreshToken, "10.0.0.1")
	require.ErrorIs(t, err, ErrTokenReused)

	// Replay отозвал всю цепочку — новый токен тоже мёртв.
	_, _, err = svc.Refresh(ctx, next.RefreshToken, "10.0.0.1")
	require.ErrorIs(t, err, ErrTokenReused)
}

func TestRefresh_UnknownToken(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultOptions())

	_, _, err := svc.Refresh(context.Background(), "never-issued", "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh_RateLimited(t *testing.T) {
	t.Parallel()

	opts := defaultOptions()
	opts.refreshLimit = 1
	svc, _ := newTestService(t, opts)
	registerTestUser(t, svc)
	ctx := context.Background()

	pair, _, err := svc.LoginUser(ctx, testEmail, testPassword, "10.0.0.1")
	require.NoError(t, err)

	next, _, err := svc.Refresh(ctx, pair.RefreshToken, "10.0.0.1")
	require.NoError(t, err)

	_, _, err = svc.Refresh(ctx, next.RefreshToken, "10.0.0.1")
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestLogout_Idempotent(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultOptions())
	registerTestUser(t, svc)
	ctx := context.Background()

	pair, _, err := svc.LoginUser(ctx, testEmail, testPassword, "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	require.NoError(t, svc.Logout(ctx, "never-issued"))
	require.NoError(t, svc.Logout(ctx, ""))
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t, defaultOptions())
	uid := registerTestUser(t, svc)
	ctx := context.Background()

	pair, _, err := svc.LoginUser(ctx, testEmail, testPassword, "10.0.0.1")
	require.NoError(t, err)

	got, err := svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, uid, got)

	_, err = svc.Authenticate(ctx, "garbage")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_Expired(t *testing.T) {
	t.Parallel()

	opts := defaultOptions()
	opts.accessTTL = -time.Minute
	svc, _ := newTestService(t, opts)
	registerTestUser(t, svc)
	ctx := context.Background()

	pair, _, err := svc.LoginUser(ctx, testEmail, testPassword, "10.0.0.1")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestLoginUser_StorageError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	auditor := nopRecorder{}
	limiter := ratelimit.New(ratelimit.NewMemoryStore(), "test")
	limiter.SetPolicy(RouteLogin, 100, time.Minute)

	authCfg := config.AuthConfig{
		JWTSecret:      "test-secret",
		AccessTokenTTL: 15 * time.Minute,
		Issuer:         "session-service",
		Audience:       []string{"fluxline-api"},
	}

	svc := New(
		st,
		token.NewIssuer(authCfg),
		refresh.NewStore(st, auditor, time.Hour),
		lockout.NewGuard(st, auditor, 5, 15*time.Minute),
		limiter,
	)

	wantErr := errors.New("db down")
	st.EXPECT().UserByEmail(gomock.Any(), testEmail).Return(nil, wantErr)

	_, _, err := svc.LoginUser(context.Background(), testEmail, testPassword, "10.0.0.1")
	require.ErrorIs(t, err, wantErr)
	require.NotErrorIs(t, err, ErrInvalidCredentials)

	// Not-found из хранилища наружу не протекает.
	st.EXPECT().UserByEmail(gomock.Any(), testEmail).Return(nil, storage.ErrNotFound)

	_, _, err = svc.LoginUser(context.Background(), testEmail, testPassword, "10.0.0.1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.NotErrorIs(t, err, storage.ErrNotFound)
}
