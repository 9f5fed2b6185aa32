// memory реализует storage.Storage поверх карт в памяти процесса.
//
// Реализация предназначена для тестов и локальной разработки: семантика
// (включая атомарность ConsumeRefreshToken и инкремента счётчика блокировки)
// совпадает с postgres-реализацией, но состояние живёт только внутри одного
// процесса.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxline/session-service/internal/models"
	"github.com/fluxline/session-service/internal/storage"
)

type Storage struct {
	mu      sync.Mutex
	users   map[uuid.UUID]*models.User
	byEmail map[string]uuid.UUID
	tokens  map[string]*models.RefreshToken
}

// New создает пустое хранилище.
func New() *Storage {
	return &Storage{
		users:   make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
		tokens:  make(map[string]*models.RefreshToken),
	}
}

// SaveUser создает нового пользователя.
func (s *Storage) SaveUser(_ context.Context, user *models.User) error {
	const op = "storage.memory.SaveUser"

	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(user.Email)
	if _, ok := s.byEmail[key]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}
	if _, ok := s.users[user.ID]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	cp := *user
	s.users[user.ID] = &cp
	s.byEmail[key] = user.ID

	return nil
}

// UserByEmail находит пользователя по email.
func (s *Storage) UserByEmail(_ context.Context, email string) (*models.User, error) {
	const op = "storage.memory.UserByEmail"

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *s.users[id]
	return &cp, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.memory.UserByID"

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *user
	return &cp, nil
}

// IncrementFailedAttempts атомарно увеличивает счётчик неудачных попыток.
func (s *Storage) IncrementFailedAttempts(_ context.Context, userID uuid.UUID) (int, error) {
	const op = "storage.memory.IncrementFailedAttempts"

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return 0, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	user.FailedAttempts++
	user.UpdatedAt = time.Now().UTC()

	return user.FailedAttempts, nil
}

// SetLockedUntil выставляет момент окончания блокировки.
func (s *Storage) SetLockedUntil(_ context.Context, userID uuid.UUID, until time.Time) error {
	const op = "storage.memory.SetLockedUntil"

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	u := until
	user.LockedUntil = &u
	user.UpdatedAt = time.Now().UTC()

	return nil
}

// ResetLockout сбрасывает счётчик и снимает блокировку.
func (s *Storage) ResetLockout(_ context.Context, userID uuid.UUID) error {
	const op = "storage.memory.ResetLockout"

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.UpdatedAt = time.Now().UTC()

	return nil
}

// SaveRefreshToken сохраняет новый refresh-токен.
func (s *Storage) SaveRefreshToken(_ context.Context, token *models.RefreshToken) error {
	const op = "storage.memory.SaveRefreshToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.TokenHash]; ok {
		return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
	}

	cp := *token
	s.tokens[token.TokenHash] = &cp

	return nil
}

// RefreshTokenByHash находит refresh-токен по его хэшу.
func (s *Storage) RefreshTokenByHash(_ context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.memory.RefreshTokenByHash"

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[hash]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	cp := *token
	return &cp, nil
}

// ConsumeRefreshToken атомарно помечает токен использованным, если он ещё
// не был использован. Семантика идентична условному UPDATE в postgres:
// под общим мьютексом ровно один из гоняющихся запросов увидит used_at == nil.
func (s *Storage) ConsumeRefreshToken(_ context.Context, hash string, now time.Time) (bool, error) {
	const op = "storage.memory.ConsumeRefreshToken"

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[hash]
	if !ok {
		return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	if token.UsedAt != nil {
		return false, nil
	}

	t := now
	token.UsedAt = &t

	return true, nil
}

// MarkAllUsedForUser помечает использованными все активные токены пользователя.
func (s *Storage) MarkAllUsedForUser(_ context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, token := range s.tokens {
		if token.UserID == userID && token.UsedAt == nil {
			t := now
			token.UsedAt = &t
			n++
		}
	}

	return n, nil
}

// DeleteExpiredTokens удаляет все просроченные токены.
func (s *Storage) DeleteExpiredTokens(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, token := range s.tokens {
		if !token.ExpiresAt.After(now) {
			delete(s.tokens, hash)
		}
	}

	return nil
}

// Close освобождает ресурсы (для памяти — no-op).
func (s *Storage) Close() {}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
