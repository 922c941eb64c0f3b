package repository

import (
	"context"
	"errors"
	"time"

	"github.com/machines3d/authority/internal/models"
	"gorm.io/gorm"
)

type GormAccountStore struct {
	db *gorm.DB
}

func NewGormAccountStore(db *gorm.DB) *GormAccountStore {
	return &GormAccountStore{db: db}
}

func (s *GormAccountStore) Create(ctx context.Context, account *models.Account) error {
	account.EmailKey = EmailKey(account.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Account{}).
		Where("email_key = ?", account.EmailKey).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateEmail
	}

	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

func (s *GormAccountStore) FindByID(ctx context.Context, id uint) (*models.Account, error) {
	return s.first(ctx, "id = ?", id)
}

func (s *GormAccountStore) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	key := EmailKey(email)
	if key == "" {
		return nil, ErrNotFound
	}
	return s.first(ctx, "email_key = ?", key)
}

func (s *GormAccountStore) FindByRefreshToken(ctx context.Context, tokenHash string) (*models.Account, error) {
	return s.firstByToken(ctx, "refresh_token_hash", tokenHash)
}

func (s *GormAccountStore) FindByVerificationToken(ctx context.Context, tokenHash string) (*models.Account, error) {
	return s.firstByToken(ctx, "verification_token_hash", tokenHash)
}

func (s *GormAccountStore) FindByResetToken(ctx context.Context, tokenHash string) (*models.Account, error) {
	return s.firstByToken(ctx, "reset_token_hash", tokenHash)
}

func (s *GormAccountStore) SetRefreshToken(ctx context.Context, id uint, tokenHash string, issuedAt, expiresAt time.Time) error {
	return s.update(ctx, map[string]interface{}{
		"refresh_token_hash": tokenHash,
		"refresh_expires_at": expiresAt,
		"refresh_issued_at":  issuedAt,
		"refresh_revoked_at": nil,
		"last_login_at":      issuedAt,
	}, ErrNotFound, "id = ?", id)
}

func (s *GormAccountStore) RotateRefreshToken(ctx context.Context, id uint, oldHash, newHash string, issuedAt, expiresAt time.Time) error {
	return s.update(ctx, map[string]interface{}{
		"refresh_token_hash": newHash,
		"refresh_expires_at": expiresAt,
		"refresh_issued_at":  issuedAt,
		"refresh_revoked_at": nil,
	}, ErrStale, "id = ? AND refresh_token_hash = ?", id, oldHash)
}

func (s *GormAccountStore) RevokeRefreshToken(ctx context.Context, tokenHash string, revokedAt time.Time) error {
	if tokenHash == "" {
		return ErrNotFound
	}
	return s.update(ctx, map[string]interface{}{
		"refresh_token_hash": nil,
		"refresh_expires_at": nil,
		"refresh_revoked_at": revokedAt,
	}, ErrNotFound, "refresh_token_hash = ?", tokenHash)
}

func (s *GormAccountStore) SetVerificationToken(ctx context.Context, id uint, tokenHash string, expiresAt time.Time) error {
	return s.update(ctx, map[string]interface{}{
		"verification_token_hash": tokenHash,
		"verification_expires_at": expiresAt,
	}, ErrNotFound, "id = ?", id)
}

func (s *GormAccountStore) ConsumeVerificationToken(ctx context.Context, id uint, tokenHash string) error {
	return s.update(ctx, map[string]interface{}{
		"email_verified":          true,
		"verification_token_hash": nil,
		"verification_expires_at": nil,
	}, ErrStale, "id = ? AND verification_token_hash = ?", id, tokenHash)
}

func (s *GormAccountStore) SetResetToken(ctx context.Context, id uint, tokenHash string, expiresAt time.Time) error {
	return s.update(ctx, map[string]interface{}{
		"reset_token_hash": tokenHash,
		"reset_expires_at": expiresAt,
	}, ErrNotFound, "id = ?", id)
}

func (s *GormAccountStore) ConsumeResetToken(ctx context.Context, id uint, tokenHash, passwordHash string) error {
	return s.update(ctx, map[string]interface{}{
		"password_hash":    passwordHash,
		"reset_token_hash": nil,
		"reset_expires_at": nil,
	}, ErrStale, "id = ? AND reset_token_hash = ?", id, tokenHash)
}

func (s *GormAccountStore) UpdatePassword(ctx context.Context, id uint, passwordHash string) error {
	return s.update(ctx, map[string]interface{}{
		"password_hash": passwordHash,
	}, ErrNotFound, "id = ?", id)
}

func (s *GormAccountStore) UpdateProfile(ctx context.Context, id uint, update ProfileUpdate) (*models.Account, error) {
	updates := make(map[string]interface{})
	if update.FullName != nil {
		updates["full_name"] = *update.FullName
	}
	if update.Phone != nil {
		updates["phone"] = *update.Phone
	}
	if update.Profession != nil {
		updates["profession"] = *update.Profession
	}
	if update.Gender != nil {
		updates["gender"] = *update.Gender
	}

	if len(updates) > 0 {
		if err := s.update(ctx, updates, ErrNotFound, "id = ?", id); err != nil {
			return nil, err
		}
	}
	return s.FindByID(ctx, id)
}

func (s *GormAccountStore) ClearExpiredTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sweeps := []struct {
			where   string
			updates map[string]interface{}
		}{
			{"verification_expires_at < ?", map[string]interface{}{"verification_token_hash": nil, "verification_expires_at": nil}},
			{"reset_expires_at < ?", map[string]interface{}{"reset_token_hash": nil, "reset_expires_at": nil}},
			{"refresh_expires_at < ?", map[string]interface{}{"refresh_token_hash": nil, "refresh_expires_at": nil}},
		}
		for _, sw := range sweeps {
			result := tx.Model(&models.Account{}).Where(sw.where, cutoff).Updates(sw.updates)
			if result.Error != nil {
				return result.Error
			}
			total += result.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *GormAccountStore) first(ctx context.Context, query string, args ...interface{}) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).Where(query, args...).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (s *GormAccountStore) firstByToken(ctx context.Context, column, tokenHash string) (*models.Account, error) {
	if tokenHash == "" {
		return nil, ErrNotFound
	}
	return s.first(ctx, column+" = ?", tokenHash)
}

// update applies updates to the rows matched by query and returns missErr when none matched.
func (s *GormAccountStore) update(ctx context.Context, updates map[string]interface{}, missErr error, query string, args ...interface{}) error {
	result := s.db.WithContext(ctx).Model(&models.Account{}).Where(query, args...).Updates(updates)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrStale
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return missErr
	}
	return nil
}
