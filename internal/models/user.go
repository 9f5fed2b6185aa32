package models

import (
	"time"

	"github.com/google/uuid"
)

// User — модель пользователя в системе.
//
// Поля FailedAttempts/LockedUntil относятся к механизму временной блокировки
// аккаунта: счётчик растёт при неудачных входах и сбрасывается при успешном;
// LockedUntil == nil означает, что блокировка не активна.
type User struct {
	ID             uuid.UUID
	Email          string
	PasswordHash   string
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
