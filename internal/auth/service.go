package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrLoginDisabled is returned when no admin password hash is configured.
	ErrLoginDisabled = errors.New("admin login disabled")
)

// Service authenticates the single admin API operator.
type Service struct {
	username     string
	passwordHash string
	jwtConfig    *JWTConfig
}

// NewService creates an authentication service for one operator account.
func NewService(username, passwordHash string, jwtConfig *JWTConfig) *Service {
	return &Service{
		username:     strings.TrimSpace(username),
		passwordHash: passwordHash,
		jwtConfig:    jwtConfig,
	}
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if s.passwordHash == "" {
		return "", ErrLoginDisabled
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(username)), []byte(s.username)) == 1
	// bcrypt runs even when the username is wrong
	pwdErr := ComparePassword(s.passwordHash, password)
	if !userOK || pwdErr != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, s.username, RoleAdmin)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := ValidateToken(s.jwtConfig, tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Role != RoleAdmin {
		return nil, fmt.Errorf("unexpected role %q", claims.Role)
	}
	return claims, nil
}
