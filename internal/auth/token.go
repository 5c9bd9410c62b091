package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// Config holds token signing settings.
type Config struct {
	Secret string
	TTL    time.Duration
}

// ConfigFromEnv reads JWT_SECRET and JWT_TTL (Go duration, default 1h).
func ConfigFromEnv() Config {
	ttl := time.Hour
	if v := os.Getenv("JWT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			ttl = d
		}
	}
	return Config{Secret: os.Getenv("JWT_SECRET"), TTL: ttl}
}

// Claims is the session payload carried by every issued token.
type Claims struct {
	UserID     string `json:"userId"`
	SchemaName string `json:"schemaName"`
	Role       string `json:"role"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the caller holds the admin role.
func (c *Claims) IsAdmin() bool { return c != nil && c.Role == RoleAdmin }

var (
	ErrMissingSecret = errors.New("JWT_SECRET is not set")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// TokenService signs and verifies HS256 session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(cfg Config) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &TokenService{secret: []byte(cfg.Secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for the given tenant identity.
func (s *TokenService) Issue(userID, schemaName, role string) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID:     userID,
		SchemaName: schemaName,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses the token and returns its claims. Any failure (bad
// signature, wrong algorithm, expired, malformed) yields ErrInvalidToken.
func (s *TokenService) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
