package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"teamtask/tasks/core"
)

// MinSecretLen is the shortest signing secret accepted at startup.
const MinSecretLen = 32

type Claims struct {
	UserID string    `json:"uid"`
	Role   core.Role `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens. The secret is injected
// from configuration; there is no fallback key.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if len(secret) < MinSecretLen {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLen)
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (t *Tokens) Issue(u core.User) (string, error) {
	now := t.now()
	claims := &Claims{
		UserID: u.ID,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Authenticate turns a bearer token into an actor. Missing, malformed,
// expired tokens and unknown roles all fail with core.ErrUnauthorized.
func (t *Tokens) Authenticate(tokenStr string) (core.Actor, error) {
	if tokenStr == "" {
		return core.Actor{}, core.ErrUnauthorized
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil || !token.Valid {
		return core.Actor{}, fmt.Errorf("%w: %v", core.ErrUnauthorized, err)
	}

	if claims.UserID == "" || !claims.Role.Valid() {
		return core.Actor{}, core.ErrUnauthorized
	}
	return core.Actor{ID: claims.UserID, Role: claims.Role}, nil
}
