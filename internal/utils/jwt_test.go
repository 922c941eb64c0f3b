package utils

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-testing-0123456789"

func init() {
	if err := SetJWTSecret(testSecret); err != nil {
		panic(err)
	}
}

func TestGenerateToken(t *testing.T) {
	token, expiresAt, err := GenerateToken(1, "a@x.com", "user", "Ada Lovelace", 15*time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if token == "" {
		t.Error("GenerateToken() returned empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Errorf("expiresAt %v should be in the future", expiresAt)
	}
}

func TestGenerateToken_UniqueJTI(t *testing.T) {
	token1, _, _ := GenerateToken(1, "a@x.com", "user", "A", time.Minute)
	token2, _, _ := GenerateToken(1, "a@x.com", "user", "A", time.Minute)

	if token1 == token2 {
		t.Fatal("tokens for the same account should differ")
	}

	c1, err := ParseToken(token1)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	c2, err := ParseToken(token2)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if c1.ID == "" || c1.ID == c2.ID {
		t.Errorf("jti should be present and unique, got %q and %q", c1.ID, c2.ID)
	}
}

func TestParseToken(t *testing.T) {
	token, _, _ := GenerateToken(42, "owner@x.com", "admin", "Owner", time.Minute)

	claims, err := ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	id, err := claims.AccountID()
	if err != nil || id != 42 {
		t.Errorf("AccountID() = %d, %v, expected 42", id, err)
	}
	if claims.Email != "owner@x.com" {
		t.Errorf("Email = %q, expected %q", claims.Email, "owner@x.com")
	}
	if claims.Role != "admin" {
		t.Errorf("Role = %q, expected %q", claims.Role, "admin")
	}
	if claims.FullName != "Owner" {
		t.Errorf("FullName = %q, expected %q", claims.FullName, "Owner")
	}
}

func TestParseToken_InvalidToken(t *testing.T) {
	invalidTokens := []string{
		"",
		"invalid",
		"not.a.token",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
	}

	for _, token := range invalidTokens {
		_, err := ParseToken(token)
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ParseToken(%q) error = %v, expected ErrInvalidToken", token, err)
		}
	}
}

func TestParseToken_Expired(t *testing.T) {
	token, _, err := GenerateToken(1, "a@x.com", "user", "A", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := ParseToken(token); err == nil {
		t.Error("ParseToken should reject an expired token")
	}
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := ParseToken(signed); err == nil {
		t.Error("ParseToken should reject tokens not signed with HS256")
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	if err := SetJWTSecret("original-secret-0123456789abcdefghij"); err != nil {
		t.Fatal(err)
	}
	token, _, _ := GenerateToken(1, "a@x.com", "user", "A", time.Minute)

	_ = SetJWTSecret("different-secret-0123456789abcdefghij")
	_, err := ParseToken(token)

	_ = SetJWTSecret(testSecret)

	if err == nil {
		t.Error("ParseToken should fail with wrong secret")
	}
}

func TestSetJWTSecret_TooShort(t *testing.T) {
	if err := SetJWTSecret("short"); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("SetJWTSecret(short) error = %v, expected ErrSecretTooShort", err)
	}

	// previous secret stays installed
	if _, _, err := GenerateToken(1, "a@x.com", "user", "A", time.Minute); err != nil {
		t.Errorf("GenerateToken() after rejected secret error = %v", err)
	}
}

func TestGenerateToken_Expiration(t *testing.T) {
	token, _, _ := GenerateToken(1, "a@x.com", "user", "A", time.Hour)
	claims, _ := ParseToken(token)

	expiresAt := claims.ExpiresAt.Time
	now := time.Now()

	if expiresAt.Before(now) {
		t.Error("token should not be expired immediately")
	}

	expectedExpiry := now.Add(1 * time.Hour)
	diff := expiresAt.Sub(expectedExpiry)
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("expiration time is off by more than 1 minute: %v", diff)
	}
}

func TestClaims_AccountID_Invalid(t *testing.T) {
	for _, sub := range []string{"", "abc", "0", "-1"} {
		c := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}
		if _, err := c.AccountID(); err == nil {
			t.Errorf("AccountID() with subject %q should fail", sub)
		}
	}
}
