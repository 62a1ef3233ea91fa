package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/example/ride-tracking/internal/models"
)

// TokenValidator authenticates bearer tokens. Issuance lives elsewhere; this
// service only consumes tokens. The concrete implementation is chosen and
// wired at startup.
type TokenValidator interface {
	Validate(token string) (models.Identity, error)
}

var ErrInvalidToken = errors.New("invalid token")

// JWTValidator validates HMAC-signed JWTs carrying email and role claims.
type JWTValidator struct {
	secret []byte
}

func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

func (v *JWTValidator) Validate(token string) (models.Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, ErrInvalidToken
	}
	email, _ := claims["email"].(string)
	role, _ := claims["role"].(string)
	if email == "" {
		return models.Identity{}, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}
	return models.Identity{Email: email, Role: role}, nil
}

// TokenFromRequest extracts a bearer token from the Authorization header or,
// for WebSocket clients that cannot set headers, the "token" query
// parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("token")
}
