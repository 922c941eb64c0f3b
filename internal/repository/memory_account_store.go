package repository

import (
	"context"
	"sync"
	"time"

	"github.com/machines3d/authority/internal/models"
)

// MemoryAccountStore is a process-local AccountStore. A single mutex makes each
// method an atomic read-modify-write, matching the row-level guarantees of the
// relational store.
type MemoryAccountStore struct {
	mu       sync.Mutex
	nextID   uint
	accounts map[uint]*models.Account
	now      func() time.Time
}

func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		nextID:   1,
		accounts: make(map[uint]*models.Account),
		now:      time.Now,
	}
}

func (s *MemoryAccountStore) Create(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.EmailKey = EmailKey(account.Email)
	for _, a := range s.accounts {
		if a.EmailKey == account.EmailKey {
			return ErrDuplicateEmail
		}
	}

	now := s.now().UTC()
	account.ID = s.nextID
	account.CreatedAt = now
	account.UpdatedAt = now
	s.nextID++

	stored := *account
	s.accounts[stored.ID] = &stored
	return nil
}

func (s *MemoryAccountStore) FindByID(_ context.Context, id uint) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(a), nil
}

func (s *MemoryAccountStore) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	key := EmailKey(email)
	return s.find(func(a *models.Account) bool { return key != "" && a.EmailKey == key })
}

func (s *MemoryAccountStore) FindByRefreshToken(_ context.Context, tokenHash string) (*models.Account, error) {
	return s.find(func(a *models.Account) bool { return matches(a.RefreshTokenHash, tokenHash) })
}

func (s *MemoryAccountStore) FindByVerificationToken(_ context.Context, tokenHash string) (*models.Account, error) {
	return s.find(func(a *models.Account) bool { return matches(a.VerificationTokenHash, tokenHash) })
}

func (s *MemoryAccountStore) FindByResetToken(_ context.Context, tokenHash string) (*models.Account, error) {
	return s.find(func(a *models.Account) bool { return matches(a.ResetTokenHash, tokenHash) })
}

func (s *MemoryAccountStore) SetRefreshToken(_ context.Context, id uint, tokenHash string, issuedAt, expiresAt time.Time) error {
	return s.mutate(id, ErrNotFound, nil, func(a *models.Account) {
		a.RefreshTokenHash = ptr(tokenHash)
		a.RefreshExpiresAt = ptr(expiresAt)
		a.RefreshIssuedAt = ptr(issuedAt)
		a.RefreshRevokedAt = nil
		a.LastLoginAt = ptr(issuedAt)
	})
}

func (s *MemoryAccountStore) RotateRefreshToken(_ context.Context, id uint, oldHash, newHash string, issuedAt, expiresAt time.Time) error {
	cond := func(a *models.Account) bool { return matches(a.RefreshTokenHash, oldHash) }
	return s.mutate(id, ErrStale, cond, func(a *models.Account) {
		a.RefreshTokenHash = ptr(newHash)
		a.RefreshExpiresAt = ptr(expiresAt)
		a.RefreshIssuedAt = ptr(issuedAt)
		a.RefreshRevokedAt = nil
	})
}

func (s *MemoryAccountStore) RevokeRefreshToken(_ context.Context, tokenHash string, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if matches(a.RefreshTokenHash, tokenHash) {
			a.RefreshTokenHash = nil
			a.RefreshExpiresAt = nil
			a.RefreshRevokedAt = ptr(revokedAt)
			a.UpdatedAt = s.now().UTC()
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryAccountStore) SetVerificationToken(_ context.Context, id uint, tokenHash string, expiresAt time.Time) error {
	return s.mutate(id, ErrNotFound, nil, func(a *models.Account) {
		a.VerificationTokenHash = ptr(tokenHash)
		a.VerificationExpiresAt = ptr(expiresAt)
	})
}

func (s *MemoryAccountStore) ConsumeVerificationToken(_ context.Context, id uint, tokenHash string) error {
	cond := func(a *models.Account) bool { return matches(a.VerificationTokenHash, tokenHash) }
	return s.mutate(id, ErrStale, cond, func(a *models.Account) {
		a.EmailVerified = true
		a.VerificationTokenHash = nil
		a.VerificationExpiresAt = nil
	})
}

func (s *MemoryAccountStore) SetResetToken(_ context.Context, id uint, tokenHash string, expiresAt time.Time) error {
	return s.mutate(id, ErrNotFound, nil, func(a *models.Account) {
		a.ResetTokenHash = ptr(tokenHash)
		a.ResetExpiresAt = ptr(expiresAt)
	})
}

func (s *MemoryAccountStore) ConsumeResetToken(_ context.Context, id uint, tokenHash, passwordHash string) error {
	cond := func(a *models.Account) bool { return matches(a.ResetTokenHash, tokenHash) }
	return s.mutate(id, ErrStale, cond, func(a *models.Account) {
		a.PasswordHash = passwordHash
		a.ResetTokenHash = nil
		a.ResetExpiresAt = nil
	})
}

func (s *MemoryAccountStore) UpdatePassword(_ context.Context, id uint, passwordHash string) error {
	return s.mutate(id, ErrNotFound, nil, func(a *models.Account) {
		a.PasswordHash = passwordHash
	})
}

func (s *MemoryAccountStore) UpdateProfile(ctx context.Context, id uint, update ProfileUpdate) (*models.Account, error) {
	err := s.mutate(id, ErrNotFound, nil, func(a *models.Account) {
		if update.FullName != nil {
			a.FullName = *update.FullName
		}
		if update.Phone != nil {
			a.Phone = ptr(*update.Phone)
		}
		if update.Profession != nil {
			a.Profession = *update.Profession
		}
		if update.Gender != nil {
			a.Gender = *update.Gender
		}
	})
	if err != nil {
		return nil, err
	}
	return s.FindByID(ctx, id)
}

func (s *MemoryAccountStore) ClearExpiredTokens(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cleared int64
	for _, a := range s.accounts {
		if a.VerificationExpiresAt != nil && a.VerificationExpiresAt.Before(cutoff) {
			a.VerificationTokenHash, a.VerificationExpiresAt = nil, nil
			cleared++
		}
		if a.ResetExpiresAt != nil && a.ResetExpiresAt.Before(cutoff) {
			a.ResetTokenHash, a.ResetExpiresAt = nil, nil
			cleared++
		}
		if a.RefreshExpiresAt != nil && a.RefreshExpiresAt.Before(cutoff) {
			a.RefreshTokenHash, a.RefreshExpiresAt = nil, nil
			cleared++
		}
	}
	return cleared, nil
}

func (s *MemoryAccountStore) find(pred func(*models.Account) bool) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if pred(a) {
			return clone(a), nil
		}
	}
	return nil, ErrNotFound
}

// mutate applies fn to account id under the lock. When cond is non-nil and
// rejects the current row, missErr is returned and nothing changes.
func (s *MemoryAccountStore) mutate(id uint, missErr error, cond func(*models.Account) bool, fn func(*models.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return missErr
	}
	if cond != nil && !cond(a) {
		return missErr
	}
	fn(a)
	a.UpdatedAt = s.now().UTC()
	return nil
}

func matches(stored *string, tokenHash string) bool {
	return tokenHash != "" && stored != nil && *stored == tokenHash
}

func clone(a *models.Account) *models.Account {
	c := *a
	return &c
}

func ptr[T any](v T) *T {
	return &v
}
