package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fluxline/session-service/internal/models"
)

var (
	// ErrNotFound — запись не найдена (пользователь/токен).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/refresh-token).
	ErrAlreadyExists = errors.New("already exists")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создает нового пользователя в БД.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// LockoutStorage выполняет операции над счётчиками блокировки аккаунта.
//
// Счётчики живут на строке пользователя; инкремент обязан быть атомарным
// на стороне хранилища (без read-then-write), чтобы параллельные неудачные
// входы не теряли обновления.
type LockoutStorage interface {
	// IncrementFailedAttempts атомарно увеличивает счётчик неудачных
	// попыток и возвращает новое значение.
	IncrementFailedAttempts(ctx context.Context, userID uuid.UUID) (int, error)
	// SetLockedUntil выставляет момент окончания блокировки.
	SetLockedUntil(ctx context.Context, userID uuid.UUID, until time.Time) error
	// ResetLockout сбрасывает счётчик в ноль и снимает блокировку.
	ResetLockout(ctx context.Context, userID uuid.UUID) error
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-токен.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByHash находит refresh-токен по его хэшу.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// ConsumeRefreshToken атомарно помечает токен использованным
	// (used_at = now), если он ещё не был использован.
	// Возвращает:
	//
	//	(true, nil)  — токен был активен и потреблён сейчас;
	//	(false, nil) — токен существует, но уже был использован;
	//	(false, ErrNotFound) — токен не найден.
	ConsumeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error)
	// MarkAllUsedForUser помечает использованными все активные токены
	// пользователя; возвращает число затронутых записей.
	MarkAllUsedForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	// DeleteExpiredTokens удаляет все просроченные токены.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

// Storage задает контракт работы с БД.
type Storage interface {
	UserStorage
	LockoutStorage
	RefreshTokenStorage
	Close()
}
