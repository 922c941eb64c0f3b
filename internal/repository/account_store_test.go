package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/machines3d/authority/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newRepositoryDBForTest(t *testing.T) *gorm.DB {
	t.Helper()

	dbName := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", dbName)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// storesForTest runs each case against both implementations.
func storesForTest(t *testing.T) map[string]func(t *testing.T) AccountStore {
	return map[string]func(t *testing.T) AccountStore{
		"gorm": func(t *testing.T) AccountStore {
			return NewGormAccountStore(newRepositoryDBForTest(t))
		},
		"memory": func(t *testing.T) AccountStore {
			return NewMemoryAccountStore()
		},
	}
}

func createAccount(t *testing.T, store AccountStore, email string) *models.Account {
	t.Helper()
	account := &models.Account{
		Email:        email,
		PasswordHash: "hash",
		FullName:     "Test User",
		Role:         models.RoleUser,
	}
	require.NoError(t, store.Create(context.Background(), account))
	require.NotZero(t, account.ID)
	return account
}

func TestAccountStore_CreateAndFind(t *testing.T) {
	for name, newStore := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			account := createAccount(t, store, "Alice@Example.com")

			found, err := store.FindByEmail(ctx, "  alice@EXAMPLE.com ")
			require.NoError(t, err)
			assert.Equal(t, account.ID, found.ID)
			assert.Equal(t, "Alice@Example.com", found.Email)

			byID, err := store.FindByID(ctx, account.ID)
			require.NoError(t, err)
			assert.Equal(t, "Test User", byID.FullName)

			_, err = store.FindByEmail(ctx, "nobody@example.com")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.FindByID(ctx, account.ID+100)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestAccountStore_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	for name, newStore := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			createAccount(t, store, "bob@example.com")

			err := store.Create(context.Background(), &models.Account{Email: "BOB@example.com", Role: models.RoleUser})
			assert.ErrorIs(t, err, ErrDuplicateEmail)
		})
	}
}

func TestAccountStore_RefreshTokenLifecycle(t *testing.T) {
	for name, newStore := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			account := createAccount(t, store, "carol@example.com")
			now := time.Now().UTC()

			require.NoError(t, store.SetRefreshToken(ctx, account.ID, "hash-1", now, now.Add(time.Hour)))

			found, err := store.FindByRefreshToken(ctx, "hash-1")
			require.NoError(t, err)
			assert.Equal(t, account.ID, found.ID)
			require.NotNil(t, found.LastLoginAt)

			require.NoError(t, store.RotateRefreshToken(ctx, account.ID, "hash-1", "hash-2", now, now.Add(time.Hour)))
			assert.ErrorIs(t, store.RotateRefreshToken(ctx, account.ID, "hash-1", "hash-3", now, now.Add(time.Hour)), ErrStale)

			_, err = store.FindByRefreshToken(ctx, "hash-1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.RevokeRefreshToken(ctx, "hash-2", now))
			assert.ErrorIs(t, store.RevokeRefreshToken(ctx, "hash-2", now), ErrNotFound)

			revoked, err := store.FindByID(ctx, account.ID)
			require.NoError(t, err)
			assert.Nil(t, revoked.RefreshTokenHash)
			assert.Nil(t, revoked.RefreshExpiresAt)
			assert.NotNil(t, revoked.RefreshRevokedAt)
		})
	}
}

func TestAccountStore_EmptyTokenNeverMatches(t *testing.T) {
	for name, newStore := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			createAccount(t, store, "dave@example.com")

			_, err := store.FindByRefreshToken(ctx, "")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.FindByVerificationToken(ctx, "")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.FindByResetToken(ctx, "")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, store.RevokeRefreshToken(ctx, "", time.Now()), ErrNotFound)
		})
	}
}

func TestAccountStore_VerificationTokenConsumedOnce(t *testing.T) {
	for name, newStore := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			account := createAccount(t, store, "erin@example.com")

			require.NoError(t, store.SetVerificationToken(ctx, account.ID, "verify-1", time.Now().Add(time.Minute)))
			found, err := store.FindByVerificationToken(ctx, "verify-1")
			require.NoError(t, err)
			assert.False(t, found.EmailVerified)

			require.NoError(t, store.ConsumeVerificationToken(ctx, account.ID, "verify-1"))
			assert.ErrorIs(t, store.ConsumeVerificationToken(ctx, account.ID, "verify-1"), ErrStale)

			verified, err := store.FindByID(ctx, account.ID)
			require.NoError(t, err)
			assert.True(t, verified.EmailVerified)
			assert.Nil(t, verified.VerificationTokenHash)
			assert.Nil(t, verified.VerificationExpiresAt)
		})
	}
}

func TestAccountStore_ResetTokenConsumedOnce(t *testing.T) {
	for name, newStore := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			account := createAccount(t, store, "frank@example.com")

			require.NoError(t, store.SetResetToken(ctx, account.ID, "reset-1", time.Now().Add(time.Minute)))
			require.NoError(t, store.SetResetToken(ctx, account.ID, "reset-2", time.Now().Add(time.Minute)))

			_, err := store.FindByResetToken(ctx, "reset-1")
			assert.ErrorIs(t, err, ErrNotFound, "issuing a new token overwrites the old one")

			require.NoError(t, store.ConsumeResetToken(ctx, account.ID, "reset-2", "new-hash"))
			assert.ErrorIs(t, store.ConsumeResetToken(ctx, account.ID, "reset-2", "other"), ErrStale)

			updated, err := store.FindByID(ctx, account.ID)
			require.NoError(t, err)
			assert.Equal(t, "new-hash", updated.PasswordHash)
			assert.Nil(t, updated.ResetTokenHash)
		})
	}
}

func TestAccountStore_UpdateProfileAndPassword(t *testing.T) {
	for name, newStore := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			account := createAccount(t, store, "grace@example.com")

			fullName, phone := "Grace Hopper", "+1 555 0100"
			updated, err := store.UpdateProfile(ctx, account.ID, ProfileUpdate{FullName: &fullName, Phone: &phone})
			require.NoError(t, err)
			assert.Equal(t, fullName, updated.FullName)
			require.NotNil(t, updated.Phone)
			assert.Equal(t, phone, *updated.Phone)
			assert.Empty(t, updated.Profession)

			require.NoError(t, store.UpdatePassword(ctx, account.ID, "rotated"))
			assert.ErrorIs(t, store.UpdatePassword(ctx, account.ID+100, "x"), ErrNotFound)

			_, err = store.UpdateProfile(ctx, account.ID+100, ProfileUpdate{FullName: &fullName})
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestAccountStore_ClearExpiredTokens(t *testing.T) {
	for name, newStore := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			now := time.Now().UTC()

			stale := createAccount(t, store, "stale@example.com")
			fresh := createAccount(t, store, "fresh@example.com")

			require.NoError(t, store.SetVerificationToken(ctx, stale.ID, "v-stale", now.Add(-time.Minute)))
			require.NoError(t, store.SetResetToken(ctx, stale.ID, "r-stale", now.Add(-time.Minute)))
			require.NoError(t, store.SetVerificationToken(ctx, fresh.ID, "v-fresh", now.Add(time.Hour)))

			cleared, err := store.ClearExpiredTokens(ctx, now)
			require.NoError(t, err)
			assert.Equal(t, int64(2), cleared)

			_, err = store.FindByVerificationToken(ctx, "v-stale")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = store.FindByVerificationToken(ctx, "v-fresh")
			assert.NoError(t, err)
		})
	}
}

func TestAccountStore_ConcurrentRotationHasOneWinner(t *testing.T) {
	for name, newStore := range storesForTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := newStore(t)
			account := createAccount(t, store, "race@example.com")
			now := time.Now().UTC()
			require.NoError(t, store.SetRefreshToken(ctx, account.ID, "original", now, now.Add(time.Hour)))

			const racers = 8
			var wins, stale int32
			var wg sync.WaitGroup
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					err := store.RotateRefreshToken(ctx, account.ID, "original", fmt.Sprintf("next-%d", i), now, now.Add(time.Hour))
					switch {
					case err == nil:
						atomic.AddInt32(&wins, 1)
					case err == ErrStale:
						atomic.AddInt32(&stale, 1)
					}
				}(i)
			}
			wg.Wait()

			assert.Equal(t, int32(1), wins)
			assert.Equal(t, int32(racers-1), stale)
		})
	}
}
