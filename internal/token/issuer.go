// token реализует выпуск и проверку access-токенов (JWT, HS256).
//
// Компонент сознательно не обращается к хранилищу: валидность access-токена
// определяется только подписью и сроком действия, поэтому любой экземпляр
// сервера с общим секретом может проверить токен, выпущенный другим.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fluxline/session-service/internal/config"
)

var (
	// ErrInvalidToken — токен некорректен по формату/подписи/клеймам.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired — срок действия токена истёк.
	ErrTokenExpired = errors.New("token expired")
)

type accessClaims struct {
	jwt.RegisteredClaims
}

// Issuer выпускает и проверяет access-токены.
type Issuer struct {
	cfg config.AuthConfig
}

// NewIssuer создаёт Issuer с параметрами подписи из конфигурации.
func NewIssuer(cfg config.AuthConfig) *Issuer {
	return &Issuer{cfg: cfg}
}

// Mint подписывает claim set {sub, iat, exp} для пользователя userID.
// Срок действия — now + AccessTokenTTL; отрицательный TTL даёт уже
// просроченный токен (используется в тестах граничных случаев).
func (i *Issuer) Mint(userID uuid.UUID, now time.Time) (string, time.Time, error) {
	const op = "token.Mint"

	expiresAt := now.Add(i.cfg.AccessTokenTTL)

	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    i.cfg.Issuer,
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings(i.cfg.Audience),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(i.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, expiresAt, nil
}

// Verify проверяет подпись и срок действия access-токена и возвращает
// ID пользователя из claim sub. Хранилище не используется.
func (i *Issuer) Verify(tokenStr string) (uuid.UUID, error) {
	const op = "token.Verify"

	token, err := jwt.ParseWithClaims(tokenStr, &accessClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
			}

			return []byte(i.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.cfg.Issuer),
		jwt.WithAudience(i.cfg.Audience...),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	claims, ok := token.Claims.(*accessClaims)
	if !ok || !token.Valid {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return uid, nil
}
