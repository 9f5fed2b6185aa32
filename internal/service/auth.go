package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/fluxline/session-service/internal/lockout"
	"github.com/fluxline/session-service/internal/models"
	"github.com/fluxline/session-service/internal/password"
	"github.com/fluxline/session-service/internal/refresh"
	"github.com/fluxline/session-service/internal/storage"
	"github.com/fluxline/session-service/internal/token"
)

// RegisterUser регистрирует нового пользователя и выпускает первую пару токенов.
func (s *Service) RegisterUser(ctx context.Context, email, pw string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.RegisterUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(pw); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := password.Hash(pw)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.issueTokenPair(ctx, user.ID)
}

// LoginUser выполняет вход по email+пароль.
//
// Порядок проверок фиксирован: rate-limit → поиск пользователя →
// блокировка → пароль. Блокировка проверяется ДО сверки пароля, чтобы
// заблокированный аккаунт не тратил bcrypt; при неизвестном email
// выполняется сравнение с фиктивным хэшем, чтобы время ответа не выдавало,
// какое из полей неверно. identity — ключ rate-limit (арендатор или IP).
func (s *Service) LoginUser(ctx context.Context, email, pw, identity string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.LoginUser"

	ok, err := s.limiter.Allow(ctx, RouteLogin, identity)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrRateLimited)
	}

	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if len(pw) == 0 {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Выравнивание тайминга: неизвестный email стоит столько же,
			// сколько неверный пароль.
			password.DummyCompare(pw)
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if lockout.IsLocked(user.LockedUntil, time.Now().UTC()) {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrAccountLocked)
	}

	if !password.Verify(user.PasswordHash, pw) {
		if err := s.guard.RecordFailure(ctx, user.ID); err != nil {
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
		}

		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := s.guard.RecordSuccess(ctx, user.ID); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return s.issueTokenPair(ctx, user.ID)
}

// Refresh ротирует refresh-токен и выпускает новую пару.
func (s *Service) Refresh(ctx context.Context, refreshToken, identity string) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.Refresh"

	ok, err := s.limiter.Allow(ctx, RouteRefresh, identity)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrRateLimited)
	}

	userID, plainNew, err := s.refresh.Rotate(ctx, refreshToken)
	if err != nil {
		switch {
		case errors.Is(err, refresh.ErrTokenInvalid):
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		case errors.Is(err, refresh.ErrTokenReused):
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenReused)
		default:
			return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	accessToken, expiresAt, err := s.issuer.Mint(userID, time.Now().UTC())
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plainNew,
		AccessExpiresAt: expiresAt,
	}, userID, nil
}

// Logout отзывает предъявленный refresh-токен. Операция идемпотентна:
// отсутствующий или уже отозванный токен не считается ошибкой.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.auth.Logout"

	if refreshToken == "" {
		return nil
	}

	if err := s.refresh.Revoke(ctx, refreshToken); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Authenticate проверяет access-токен и возвращает ID пользователя.
// Хранилище не используется: только подпись и срок действия.
func (s *Service) Authenticate(_ context.Context, accessToken string) (uuid.UUID, error) {
	const op = "service.auth.Authenticate"

	uid, err := s.issuer.Verify(accessToken)
	if err != nil {
		if errors.Is(err, token.ErrInvalidToken) || errors.Is(err, token.ErrTokenExpired) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return uid, nil
}

// issueTokenPair выпускает новую пару access+refresh токенов.
func (s *Service) issueTokenPair(ctx context.Context, userID uuid.UUID) (*models.TokenPair, uuid.UUID, error) {
	const op = "service.auth.issueTokenPair"

	now := time.Now().UTC()

	accessToken, expiresAt, err := s.issuer.Mint(userID, now)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	plain, err := s.refresh.Issue(ctx, userID)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		AccessToken:     accessToken,
		RefreshToken:    plain,
		AccessExpiresAt: expiresAt,
	}, userID, nil
}

// validateEmail проверяет базовый формат email и обрезает пробелы снаружи.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика по умолчанию: длина >= 8, хотя бы одна строчная, заглавная,
// цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
