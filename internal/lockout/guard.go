// lockout реализует временную блокировку аккаунта после серии неудачных
// попыток входа.
//
// Машина состояний на пользователя: Unlocked → (неудачи накапливаются) →
// Locked (на фиксированное окно) → Unlocked (по истечении окна или после
// успешного входа). Политика проверяется ДО сверки пароля, поэтому
// заблокированный аккаунт не тратит дорогой bcrypt и не даёт тайминг-сигнала.
package lockout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fluxline/session-service/internal/audit"
	"github.com/fluxline/session-service/internal/storage"
)

// Guard отслеживает неудачные входы и применяет блокировку.
type Guard struct {
	storage   storage.LockoutStorage
	auditor   audit.Recorder
	threshold int
	window    time.Duration
}

// NewGuard создает Guard с порогом threshold и окном блокировки window.
func NewGuard(st storage.LockoutStorage, auditor audit.Recorder, threshold int, window time.Duration) *Guard {
	return &Guard{
		storage:   st,
		auditor:   auditor,
		threshold: threshold,
		window:    window,
	}
}

// IsLocked сообщает, действует ли блокировка для уже загруженного
// пользователя в момент now. Чистая проверка без обращения к хранилищу:
// счётчики лежат на строке пользователя, которую вызывающий уже прочитал.
func IsLocked(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && now.Before(*lockedUntil)
}

// RecordFailure фиксирует неудачную попытку входа. При достижении порога
// выставляет блокировку до now + window и пишет событие безопасности.
func (g *Guard) RecordFailure(ctx context.Context, userID uuid.UUID) error {
	const op = "lockout.RecordFailure"

	attempts, err := g.storage.IncrementFailedAttempts(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if attempts < g.threshold {
		return nil
	}

	until := time.Now().UTC().Add(g.window)
	if err := g.storage.SetLockedUntil(ctx, userID, until); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	g.auditor.Record(ctx, audit.EventAccountLocked, userID,
		slog.Int("failed_attempts", attempts),
		slog.Time("locked_until", until),
	)

	return nil
}

// RecordSuccess сбрасывает счётчик неудач и снимает блокировку.
func (g *Guard) RecordSuccess(ctx context.Context, userID uuid.UUID) error {
	const op = "lockout.RecordSuccess"

	if err := g.storage.ResetLockout(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
