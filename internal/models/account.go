package models

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Account is a registered user together with its inline token state.
// Each token kind has exactly one slot, so issuing a new token overwrites the
// previous one. Token columns hold SHA-256 digests, never the raw value.
type Account struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Email         string  `gorm:"size:255;not null" json:"email"`
	EmailKey      string  `gorm:"uniqueIndex;size:255;not null" json:"-"` // lowercased email
	PasswordHash  string  `gorm:"size:255" json:"-"`
	FullName      string  `gorm:"size:200" json:"full_name"`
	Profession    string  `gorm:"size:100" json:"profession"`
	Gender        string  `gorm:"size:30" json:"gender"`
	Phone         *string `gorm:"size:50" json:"phone,omitempty"`
	Role          string  `gorm:"size:20;default:user;not null" json:"role"` // admin, user
	EmailVerified bool    `gorm:"default:false" json:"email_verified"`

	VerificationTokenHash *string    `gorm:"uniqueIndex;size:64" json:"-"`
	VerificationExpiresAt *time.Time `json:"-"`

	ResetTokenHash *string    `gorm:"uniqueIndex;size:64" json:"-"`
	ResetExpiresAt *time.Time `json:"-"`

	RefreshTokenHash *string    `gorm:"uniqueIndex;size:64" json:"-"`
	RefreshExpiresAt *time.Time `json:"-"`
	RefreshIssuedAt  *time.Time `json:"-"`
	RefreshRevokedAt *time.Time `json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// IsAdmin reports whether the stored role is the privileged one.
func (a *Account) IsAdmin() bool { return a.Role == RoleAdmin }
