package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims identifies the caller carried by a token.
type Claims struct {
	UserID  string
	Role    string
	Version int
}

type tokenClaims struct {
	Role    string `json:"role"`
	Version int    `json:"ver"`
	Kind    string `json:"kind"`
	jwt.RegisteredClaims
}

func sign(c Claims, kind, secret string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Role:    c.Role,
		Version: c.Version,
		Kind:    kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func parse(raw, kind, secret string) (Claims, error) {
	var tc tokenClaims
	_, err := jwt.ParseWithClaims(raw, &tc, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if tc.Kind != kind || tc.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{UserID: tc.Subject, Role: tc.Role, Version: tc.Version}, nil
}
