package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmynk/studygroup/internal/models"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret-at-least-16", time.Hour)
	id := models.Identity{UID: "u1", DisplayName: "Ada", Email: "ada@example.com"}

	token, err := m.Generate(id)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	claims, err := m.Validate(token)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if got := claims.Identity(); got != id {
		t.Errorf("Identity = %+v, want %+v", got, id)
	}
}

func TestJWTRejects(t *testing.T) {
	m := NewJWTManager("test-secret-at-least-16", time.Hour)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTManager("another-secret-value", time.Hour)
		token, err := other.Generate(models.Identity{UID: "u1"})
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		expired := NewJWTManager("test-secret-at-least-16", -time.Minute)
		token, err := expired.Generate(models.Identity{UID: "u1"})
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if _, err := m.Validate(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("subject only", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "u2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		signed, err := token.SignedString([]byte("test-secret-at-least-16"))
		if err != nil {
			t.Fatalf("SignedString failed: %v", err)
		}
		claims, err := m.Validate(signed)
		if err != nil {
			t.Fatalf("Validate failed: %v", err)
		}
		if claims.UserID != "u2" {
			t.Errorf("UserID = %q, want u2", claims.UserID)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := m.Validate("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}
