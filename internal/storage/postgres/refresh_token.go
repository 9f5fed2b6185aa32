package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fluxline/session-service/internal/models"
	"github.com/fluxline/session-service/internal/storage"
)

// SaveRefreshToken сохраняет новый refresh-токен в БД.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	query := `
        INSERT INTO refresh_tokens(token_hash, user_id, created_at, expires_at, used_at)
        VALUES ($1, $2, $3, $4, $5)
    `

	_, err := s.db.Exec(ctx, query,
		token.TokenHash,
		token.UserID,
		token.CreatedAt,
		token.ExpiresAt,
		token.UsedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RefreshTokenByHash находит refresh-токен по его хэшу.
func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByHash"

	query := `
        SELECT token_hash, user_id, created_at, expires_at, used_at
        FROM refresh_tokens
        WHERE token_hash = $1
    `

	var token models.RefreshToken
	err := s.db.QueryRow(ctx, query, hash).Scan(
		&token.TokenHash,
		&token.UserID,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.UsedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &token, nil
}

// ConsumeRefreshToken пытается пометить refresh-токен использованным, если он
// ещё не был использован. Проверка и установка used_at выполняются одним
// условным UPDATE: при гонке двух запросов с одним токеном ровно один увидит
// used_at IS NULL и выиграет, второй получит (false, nil).
// Возвращает:
//
//	(true, nil)  — токен был активен и потреблён сейчас;
//	(false, nil) — токен существует, но уже был использован;
//	(false, ErrNotFound) — токен не найден.
func (s *Storage) ConsumeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	const op = "storage.postgres.ConsumeRefreshToken"

	const upd = `
		UPDATE refresh_tokens
		SET used_at = $2
		WHERE token_hash = $1 AND used_at IS NULL
		RETURNING user_id
	`

	var userID string
	err := s.db.QueryRow(ctx, upd, hash, now).Scan(&userID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	const sel = `
		SELECT used_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var usedAt *time.Time
	err = s.db.QueryRow(ctx, sel, hash).Scan(&usedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return false, fmt.Errorf("%s: %w", op, err)
	}

	return false, nil
}

// MarkAllUsedForUser помечает использованными все активные refresh-токены
// пользователя. Используется при детекте повторного использования токена
// и при отзыве всех сессий.
func (s *Storage) MarkAllUsedForUser(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	const op = "storage.postgres.MarkAllUsedForUser"

	query := `
		UPDATE refresh_tokens
		SET used_at = $2
		WHERE user_id = $1 AND used_at IS NULL
	`

	cmdTag, err := s.db.Exec(ctx, query, userID, now)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return cmdTag.RowsAffected(), nil
}

// DeleteExpiredTokens удаляет все просроченные токены.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) error {
	const op = "storage.postgres.DeleteExpiredTokens"

	query := `
        DELETE FROM refresh_tokens
        WHERE expires_at <= $1
    `

	_, err := s.db.Exec(ctx, query, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
