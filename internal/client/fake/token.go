package fake

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errInvalidToken = errors.New("invalid token")

// claims mirrors what the real backend puts in its access tokens.
type claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

func generateToken(u *account, secret []byte, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   u.ID,
		Email:    u.Email,
		Username: u.Username,
	})

	return token.SignedString(secret)
}

func userIDFromToken(raw string, secret []byte, now func() time.Time) (string, error) {
	c := &claims{}

	token, err := jwt.ParseWithClaims(raw, c, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(now))
	if err != nil {
		return "", err
	}
	if !token.Valid || c.UserID == "" {
		return "", errInvalidToken
	}

	return c.UserID, nil
}
