// refresh реализует жизненный цикл refresh-токенов: выпуск, ротацию
// с детектом повторного использования и отзыв.
//
// Клиенту возвращается случайный секрет ровно один раз; в хранилище
// попадает только его SHA-256-хэш. Ротация инвалидирует предъявленный
// токен и выпускает ровно один новый, поэтому в каждый момент у цепочки
// сессии не более одного активного шага. Предъявление уже использованного
// токена трактуется как компрометация: вся цепочка пользователя отзывается.
package refresh

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fluxline/session-service/internal/audit"
	"github.com/fluxline/session-service/internal/pkg/log"
	"github.com/fluxline/session-service/internal/storage"

	"github.com/fluxline/session-service/internal/models"
)

var (
	// ErrTokenInvalid — токен не найден в хранилище или просрочен.
	ErrTokenInvalid = errors.New("refresh token invalid")
	// ErrTokenReused — предъявлен уже использованный токен (replay).
	ErrTokenReused = errors.New("refresh token reused")
	// ErrTokenCollision — исчерпаны попытки сгенерировать уникальный токен
	// (редкий случай коллизии хэша при сохранении).
	ErrTokenCollision = errors.New("refresh token collision")
)

// Store управляет refresh-токенами поверх storage.RefreshTokenStorage.
type Store struct {
	storage storage.RefreshTokenStorage
	auditor audit.Recorder
	ttl     time.Duration
}

// NewStore создает Store с заданным временем жизни токенов.
func NewStore(st storage.RefreshTokenStorage, auditor audit.Recorder, ttl time.Duration) *Store {
	return &Store{
		storage: st,
		auditor: auditor,
		ttl:     ttl,
	}
}

// Issue выпускает новый refresh-токен для пользователя и возвращает
// секрет в открытом виде. Секрет невозможно получить повторно.
func (s *Store) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	const (
		op          = "refresh.Issue"
		maxAttempts = 5
	)

	lg := log.From(ctx)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			lg.Error("refresh_rand_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}
		plain := base64.RawURLEncoding.EncodeToString(b)

		now := time.Now().UTC()
		token := &models.RefreshToken{
			TokenHash: HashToken(plain),
			UserID:    userID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		}

		if err := s.storage.SaveRefreshToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия — пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", fmt.Errorf("%s: %w", op, err)
		}

		return plain, nil
	}

	lg.Error("refresh_collision_exceeded", slog.String("op", op))

	return "", fmt.Errorf("%s: %w", op, ErrTokenCollision)
}

// Rotate атомарно потребляет предъявленный токен и выпускает новый для
// того же пользователя.
//
// Исходы:
//   - токен не найден или просрочен → ErrTokenInvalid;
//   - токен уже был использован → отзыв всех активных токенов пользователя
//     и ErrTokenReused;
//   - иначе ровно один из гоняющихся запросов выигрывает условное
//     обновление used_at и получает новую пару; проигравший попадает в
//     ветку reuse.
func (s *Store) Rotate(ctx context.Context, plain string) (uuid.UUID, string, error) {
	const op = "refresh.Rotate"

	lg := log.From(ctx)
	hash := HashToken(plain)

	token, err := s.storage.RefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found", slog.String("op", op))
			return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrTokenInvalid)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()

	if now.After(token.ExpiresAt) {
		lg.Warn("refresh_expired",
			slog.String("op", op),
			slog.String("user_id", token.UserID.String()),
		)
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrTokenInvalid)
	}

	consumed, err := s.storage.ConsumeRefreshToken(ctx, hash, now)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrTokenInvalid)
		}

		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	if !consumed {
		// Replay: токен уже был ротирован или отозван. Отзываем всю
		// цепочку пользователя — легитимный держатель пойдёт на повторный
		// вход, украденный токен обесценен.
		if err := s.revokeAll(ctx, token.UserID, now); err != nil {
			return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
		}

		s.auditor.Record(ctx, audit.EventTokenReuse, token.UserID)

		return uuid.Nil, "", fmt.Errorf("%s: %w", op, ErrTokenReused)
	}

	plainNew, err := s.Issue(ctx, token.UserID)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%s: %w", op, err)
	}

	return token.UserID, plainNew, nil
}

// Revoke помечает предъявленный токен использованным (logout).
// Неизвестный или уже использованный токен не считается ошибкой:
// операция идемпотентна.
func (s *Store) Revoke(ctx context.Context, plain string) error {
	const op = "refresh.Revoke"

	_, err := s.storage.ConsumeRefreshToken(ctx, HashToken(plain), time.Now().UTC())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RevokeAll немедленно отзывает все активные токены пользователя.
func (s *Store) RevokeAll(ctx context.Context, userID uuid.UUID) error {
	const op = "refresh.RevokeAll"

	if err := s.revokeAll(ctx, userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Store) revokeAll(ctx context.Context, userID uuid.UUID, now time.Time) error {
	n, err := s.storage.MarkAllUsedForUser(ctx, userID, now)
	if err != nil {
		return err
	}

	if n > 0 {
		s.auditor.Record(ctx, audit.EventSessionsRevoked, userID,
			slog.Int64("revoked", n),
		)
	}

	return nil
}

// HashToken возвращает необратимый хэш секрета для хранения и поиска.
func HashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
