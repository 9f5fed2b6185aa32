package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fluxline/session-service/internal/config"
)

func testAuthCfg() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:       "test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
		Issuer:          "session-service",
		Audience:        []string{"fluxline-api"},
	}
}

func TestMintVerify_RoundTrip(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer(testAuthCfg())
	userID := uuid.New()
	now := time.Now().UTC()

	raw, expiresAt, err := issuer.Mint(userID, now)
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.WithinDuration(t, now.Add(15*time.Minute), expiresAt, time.Second)

	got, err := issuer.Verify(raw)
	require.NoError(t, err)
	require.Equal(t, userID, got)
}

func TestVerify_Expired(t *testing.T) {
	t.Parallel()

	cfg := testAuthCfg()
	cfg.AccessTokenTTL = -time.Minute
	issuer := NewIssuer(cfg)

	raw, _, err := issuer.Mint(uuid.New(), time.Now().UTC())
	require.NoError(t, err)

	_, err = issuer.Verify(raw)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_WrongSecret(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer(testAuthCfg())
	raw, _, err := issuer.Mint(uuid.New(), time.Now().UTC())
	require.NoError(t, err)

	other := testAuthCfg()
	other.JWTSecret = "another-secret"

	_, err = NewIssuer(other).Verify(raw)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_Garbage(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer(testAuthCfg())

	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := issuer.Verify(raw)
		require.ErrorIs(t, err, ErrInvalidToken)
	}
}

// signRaw подписывает произвольный claim set тестовым секретом.
func signRaw(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims, secret string) string {
	t.Helper()

	raw, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestVerify_RejectsForeignClaims(t *testing.T) {
	t.Parallel()

	cfg := testAuthCfg()
	issuer := NewIssuer(cfg)
	now := time.Now().UTC()

	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": uuid.New().String(),
			"iat": now.Unix(),
			"exp": now.Add(15 * time.Minute).Unix(),
			"iss": cfg.Issuer,
			"aud": cfg.Audience[0],
		}
	}

	t.Run("wrong alg", func(t *testing.T) {
		t.Parallel()

		raw := signRaw(t, jwt.SigningMethodHS512, base(), cfg.JWTSecret)
		_, err := issuer.Verify(raw)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("alg none", func(t *testing.T) {
		t.Parallel()

		token := jwt.NewWithClaims(jwt.SigningMethodNone, base())
		raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = issuer.Verify(raw)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		t.Parallel()

		claims := base()
		claims["iss"] = "someone-else"
		raw := signRaw(t, jwt.SigningMethodHS256, claims, cfg.JWTSecret)

		_, err := issuer.Verify(raw)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong audience", func(t *testing.T) {
		t.Parallel()

		claims := base()
		claims["aud"] = "other-api"
		raw := signRaw(t, jwt.SigningMethodHS256, claims, cfg.JWTSecret)

		_, err := issuer.Verify(raw)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("sub is not uuid", func(t *testing.T) {
		t.Parallel()

		claims := base()
		claims["sub"] = "42"
		raw := signRaw(t, jwt.SigningMethodHS256, claims, cfg.JWTSecret)

		_, err := issuer.Verify(raw)
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
