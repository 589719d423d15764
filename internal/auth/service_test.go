package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestAuthService(t *testing.T) *Service {
	t.Helper()

	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	jwtConfig := &JWTConfig{
		Secret:   []byte("test-secret-change-me"),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return NewService(" admin ", hash, jwtConfig)
}

func TestLogin_IssuesAdminToken(t *testing.T) {
	svc := newTestAuthService(t)

	token, err := svc.Login(context.Background(), "admin", "password123")
	if err != nil {
		t.Fatalf("expected login success, got %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("token did not validate: %v", err)
	}
	if claims.Subject != "admin" || claims.Role != RoleAdmin {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	svc := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.Login(ctx, "admin", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "root", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogin_DisabledWithoutHash(t *testing.T) {
	svc := NewService("admin", "", &JWTConfig{Secret: []byte("s")})
	if _, err := svc.Login(context.Background(), "admin", "x"); !errors.Is(err, ErrLoginDisabled) {
		t.Fatalf("expected ErrLoginDisabled, got %v", err)
	}
}

func TestHashPassword_RejectsShortPassword(t *testing.T) {
	if _, err := HashPassword("12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestValidateToken_ChecksAudienceAndSecret(t *testing.T) {
	cfg := &JWTConfig{Secret: []byte("one"), Issuer: "ttbridge", Audience: "admin-api", TTL: time.Minute}
	token, err := GenerateToken(cfg, "admin", RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	if _, err := ValidateToken(&JWTConfig{Secret: []byte("two")}, token); err == nil {
		t.Fatal("token validated with the wrong secret")
	}
	if _, err := ValidateToken(&JWTConfig{Secret: []byte("one"), Audience: "other"}, token); err == nil {
		t.Fatal("token validated for the wrong audience")
	}
	if _, err := ValidateToken(cfg, token); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
}
