package utils

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/bundlehub/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

func withJWTConfig(t *testing.T, secret string, expirationHours int) {
	t.Helper()

	prevSecret := append([]byte(nil), jwtSecret...)
	prevExpiration := jwtExpirationHours
	t.Cleanup(func() {
		jwtSecret = prevSecret
		jwtExpirationHours = prevExpiration
	})

	ConfigureJWT(secret, expirationHours)
}

func TestConfigureJWT(t *testing.T) {
	t.Run("applies secret and expiration", func(t *testing.T) {
		withJWTConfig(t, "test-secret", 72)

		if string(jwtSecret) != "test-secret" {
			t.Fatalf("expected secret %q, got %q", "test-secret", string(jwtSecret))
		}
		if jwtExpirationHours != 72 {
			t.Fatalf("expected expiration 72, got %d", jwtExpirationHours)
		}
	})

	t.Run("keeps previous values for empty or non-positive input", func(t *testing.T) {
		withJWTConfig(t, "initial-secret", 24)

		ConfigureJWT("", 0)

		if string(jwtSecret) != "initial-secret" {
			t.Fatalf("expected secret to stay %q, got %q", "initial-secret", string(jwtSecret))
		}
		if jwtExpirationHours != 24 {
			t.Fatalf("expected expiration to stay 24, got %d", jwtExpirationHours)
		}
	})
}

func TestTokenRoundTrip(t *testing.T) {
	withJWTConfig(t, "roundtrip-secret", 1)

	user := &models.User{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Username:  "alice",
		Role:      models.UserRoleGroupOwner,
	}

	token, err := GenerateToken(user)
	if err != nil {
		t.Fatalf("failed generating token: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("failed validating token: %v", err)
	}

	if claims.UserID != user.ID {
		t.Fatalf("expected userID %s, got %s", user.ID, claims.UserID)
	}
	if claims.Username != "alice" {
		t.Fatalf("expected username %q, got %q", "alice", claims.Username)
	}
	if claims.Role != models.UserRoleGroupOwner {
		t.Fatalf("expected role GROUP_OWNER, got %s", claims.Role)
	}
	if claims.Issuer != tokenIssuer {
		t.Fatalf("expected issuer %q, got %q", tokenIssuer, claims.Issuer)
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected a future expiration, got %v", claims.ExpiresAt)
	}
}

func TestValidateTokenRejections(t *testing.T) {
	withJWTConfig(t, "reject-secret", 1)

	t.Run("expired token", func(t *testing.T) {
		claims := Claims{
			UserID:   uuid.New(),
			Username: "stale",
			Role:     models.UserRoleNormal,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    tokenIssuer,
				Subject:   uuid.New().String(),
				IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
		if err != nil {
			t.Fatalf("failed signing token: %v", err)
		}

		if _, err := ValidateToken(token); err == nil {
			t.Fatal("expected expired token to be rejected")
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := Claims{
			UserID: uuid.New(),
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "someone-else",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(jwtSecret)
		if err != nil {
			t.Fatalf("failed signing token: %v", err)
		}

		if _, err := ValidateToken(token); err == nil {
			t.Fatal("expected foreign-issuer token to be rejected")
		}
	})

	t.Run("malformed string", func(t *testing.T) {
		if _, err := ValidateToken("not-a-jwt"); err == nil {
			t.Fatal("expected malformed token to be rejected")
		}
	})

	t.Run("non-HMAC signing method", func(t *testing.T) {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("failed generating rsa key: %v", err)
		}

		token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}).SignedString(key)
		if err != nil {
			t.Fatalf("failed signing rsa token: %v", err)
		}

		_, err = ValidateToken(token)
		if err == nil {
			t.Fatal("expected rsa-signed token to be rejected")
		}
		if !strings.Contains(err.Error(), "unexpected signing method") {
			t.Fatalf("expected signing-method error, got: %v", err)
		}
	})
}
