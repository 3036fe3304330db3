package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

type JWTValidator struct {
	secret []byte
}

func NewJWTValidator(secret string) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("jwt secret required")
	}
	return &JWTValidator{secret: []byte(secret)}, nil
}

type Claims struct {
	Admin bool `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Validate parses the token and returns the subject and admin flag.
func (v *JWTValidator) Validate(token string) (string, bool, error) {
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", false, err
	}
	if !t.Valid || claims.Subject == "" {
		return "", false, errors.New("invalid token")
	}
	return claims.Subject, claims.Admin, nil
}
