package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/ride-tracking/internal/models"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestValidate(t *testing.T) {
	v := NewJWTValidator(testSecret)

	token := signToken(t, testSecret, jwt.MapClaims{"email": "pax@example.com", "role": models.RolePassenger})
	id, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if id.Email != "pax@example.com" || id.Role != models.RolePassenger {
		t.Fatalf("identity = %+v", id)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	v := NewJWTValidator(testSecret)
	token := signToken(t, "other-secret", jwt.MapClaims{"email": "pax@example.com"})
	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsMissingEmail(t *testing.T) {
	v := NewJWTValidator(testSecret)
	token := signToken(t, testSecret, jwt.MapClaims{"role": models.RoleDriver})
	if _, err := v.Validate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	v := NewJWTValidator(testSecret)
	if _, err := v.Validate("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if got := TokenFromRequest(r); got != "abc123" {
		t.Fatalf("header token = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/ws?token=xyz789", nil)
	if got := TokenFromRequest(r); got != "xyz789" {
		t.Fatalf("query token = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic dXNlcg==")
	if got := TokenFromRequest(r); got != "" {
		t.Fatalf("non-bearer header produced token %q", got)
	}
}

func TestMiddleware(t *testing.T) {
	v := NewJWTValidator(testSecret)
	var seen models.Identity
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("valid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"email": "d@example.com", "role": models.RoleDriver}))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		if seen.Email != "d@example.com" {
			t.Fatalf("identity in context = %+v", seen)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", w.Code)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer bogus")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", w.Code)
		}
	})
}
