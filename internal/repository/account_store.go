package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/machines3d/authority/internal/models"
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrStale is returned by compare-and-swap updates when the stored token
	// no longer matches the one the caller read.
	ErrStale = errors.New("stored token changed")
)

// ProfileUpdate carries the user-editable fields. Nil pointers are left untouched.
type ProfileUpdate struct {
	FullName   *string
	Phone      *string
	Profession *string
	Gender     *string
}

// AccountStore persists accounts. Every method touches a single row, and the
// conditional methods are atomic compare-and-swap updates at the storage layer.
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	FindByID(ctx context.Context, id uint) (*models.Account, error)
	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByRefreshToken(ctx context.Context, tokenHash string) (*models.Account, error)
	FindByVerificationToken(ctx context.Context, tokenHash string) (*models.Account, error)
	FindByResetToken(ctx context.Context, tokenHash string) (*models.Account, error)

	// SetRefreshToken overwrites the session slot unconditionally and stamps the login time.
	SetRefreshToken(ctx context.Context, id uint, tokenHash string, issuedAt, expiresAt time.Time) error
	// RotateRefreshToken replaces oldHash with newHash only if oldHash is still stored.
	RotateRefreshToken(ctx context.Context, id uint, oldHash, newHash string, issuedAt, expiresAt time.Time) error
	// RevokeRefreshToken clears the active token matching tokenHash.
	RevokeRefreshToken(ctx context.Context, tokenHash string, revokedAt time.Time) error

	SetVerificationToken(ctx context.Context, id uint, tokenHash string, expiresAt time.Time) error
	// ConsumeVerificationToken marks the email verified and clears the token if it is still stored.
	ConsumeVerificationToken(ctx context.Context, id uint, tokenHash string) error
	SetResetToken(ctx context.Context, id uint, tokenHash string, expiresAt time.Time) error
	// ConsumeResetToken swaps in passwordHash and clears the token if it is still stored.
	ConsumeResetToken(ctx context.Context, id uint, tokenHash, passwordHash string) error

	UpdatePassword(ctx context.Context, id uint, passwordHash string) error
	UpdateProfile(ctx context.Context, id uint, update ProfileUpdate) (*models.Account, error)

	// ClearExpiredTokens nulls every token slot whose expiry is before cutoff.
	ClearExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// EmailKey normalizes an email for uniqueness and lookup.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
