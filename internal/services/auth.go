package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/machines3d/authority/internal/config"
	"github.com/machines3d/authority/internal/models"
	"github.com/machines3d/authority/internal/repository"
	"github.com/machines3d/authority/internal/utils"
	"github.com/machines3d/authority/pkg/logger"
)

// Notifier delivers the side effects of token issuance. Implementations are
// best-effort: a returned error is logged and never undoes the state change.
type Notifier interface {
	VerificationIssued(ctx context.Context, account *models.Account, token string, expiresAt time.Time) error
	PasswordResetIssued(ctx context.Context, account *models.Account, token string, expiresAt time.Time) error
	EmailVerified(ctx context.Context, account *models.Account) error
}

// LoginGuard throttles repeated failed logins for the same email.
type LoginGuard interface {
	Locked(ctx context.Context, email string) (bool, error)
	RecordFailure(ctx context.Context, email string) error
	Reset(ctx context.Context, email string) error
}

type AuthService struct {
	store    repository.AccountStore
	jwtCfg   config.JWTConfig
	authCfg  config.AuthConfig
	notifier Notifier
	guard    LoginGuard
	now      func() time.Time
}

type AuthOption func(*AuthService)

func WithNotifier(n Notifier) AuthOption {
	return func(s *AuthService) { s.notifier = n }
}

func WithLoginGuard(g LoginGuard) AuthOption {
	return func(s *AuthService) { s.guard = g }
}

// WithClock replaces the time source used for issuing and checking expiries.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

func NewAuthService(store repository.AccountStore, jwtCfg *config.JWTConfig, authCfg *config.AuthConfig, opts ...AuthOption) *AuthService {
	s := &AuthService{
		store:   store,
		jwtCfg:  *jwtCfg,
		authCfg: *authCfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type RegisterRequest struct {
	Email      string  `json:"email" binding:"required,email"`
	Password   string  `json:"password" binding:"required"`
	FullName   string  `json:"full_name" binding:"required"`
	Profession string  `json:"profession"`
	Gender     string  `json:"gender"`
	Phone      *string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// TokenPair is the credential set handed to a client after login or refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type SessionResult struct {
	TokenPair
	Account *models.Account
}

// Register creates an unverified account and sends its first verification token.
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (account *models.Account, err error) {
	defer func() { observe("register", err) }()

	email := strings.TrimSpace(req.Email)
	if addr, perr := mail.ParseAddress(email); perr != nil || addr.Address != email {
		return nil, fmt.Errorf("%w: a valid email is required", ErrValidation)
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: full name is required", ErrValidation)
	}
	profession := strings.TrimSpace(req.Profession)
	if profession == "" {
		return nil, fmt.Errorf("%w: profession is required", ErrValidation)
	}
	gender := strings.TrimSpace(req.Gender)
	if gender == "" {
		return nil, fmt.Errorf("%w: gender is required", ErrValidation)
	}
	if err := s.validatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := models.RoleUser
	if s.authCfg.IsAdminEmail(email) {
		role = models.RoleAdmin
	}

	account = &models.Account{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Profession:   profession,
		Gender:       gender,
		Phone:        req.Phone,
		Role:         role,
	}
	if err := s.store.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	ttl := time.Duration(s.authCfg.VerificationTokenMinutes) * time.Minute
	if err := s.issueVerification(ctx, account, ttl); err != nil {
		return nil, err
	}

	logger.Info().Uint("account_id", account.ID).Str("role", role).Msg("account registered")
	return account, nil
}

// Login verifies credentials and starts a new session, replacing any previous one.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (result *SessionResult, err error) {
	defer func() { observe("login", err) }()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	if s.guard != nil {
		locked, gerr := s.guard.Locked(ctx, email)
		if gerr != nil {
			logger.Warn().Err(gerr).Msg("login guard unavailable")
		} else if locked {
			return nil, ErrTooManyAttempts
		}
	}

	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.recordFailure(ctx, email)
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	if !utils.CheckPassword(password, account.PasswordHash) {
		s.recordFailure(ctx, email)
		return nil, ErrInvalidCredential
	}

	if account.IsAdmin() && !s.authCfg.IsAdminEmail(account.Email) {
		logger.Warn().Uint("account_id", account.ID).Msg("admin login rejected by allow-list")
		return nil, ErrForbidden
	}

	if !account.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	now := s.now().UTC()
	access, err := s.mintAccess(account)
	if err != nil {
		return nil, err
	}

	refresh, refreshHash, err := utils.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	refreshExpires := now.Add(s.refreshTTL())
	if err := s.store.SetRefreshToken(ctx, account.ID, refreshHash, now, refreshExpires); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	if s.guard != nil {
		if gerr := s.guard.Reset(ctx, email); gerr != nil {
			logger.Warn().Err(gerr).Msg("failed to reset login guard")
		}
	}

	account.LastLoginAt = &now
	return &SessionResult{
		TokenPair: TokenPair{
			AccessToken:      access.token,
			AccessExpiresAt:  access.expiresAt,
			RefreshToken:     refresh,
			RefreshExpiresAt: refreshExpires,
		},
		Account: account,
	}, nil
}

// Refresh rotates a refresh token. The presented token is consumed: it fails on
// any later use, including when a concurrent rotation of the same token won.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (result *SessionResult, err error) {
	defer func() { observe("refresh", err) }()

	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token is required", ErrValidation)
	}

	oldHash := utils.HashToken(refreshToken)
	account, err := s.store.FindByRefreshToken(ctx, oldHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}

	now := s.now().UTC()
	if account.RefreshRevokedAt != nil {
		return nil, ErrInvalidToken
	}
	if expired(account.RefreshExpiresAt, now) {
		return nil, ErrExpired
	}

	access, err := s.mintAccess(account)
	if err != nil {
		return nil, err
	}

	refresh, newHash, err := utils.NewRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	refreshExpires := now.Add(s.refreshTTL())
	if err := s.store.RotateRefreshToken(ctx, account.ID, oldHash, newHash, now, refreshExpires); err != nil {
		if errors.Is(err, repository.ErrStale) || errors.Is(err, repository.ErrNotFound) {
			logger.Info().Uint("account_id", account.ID).Msg("refresh token rotated concurrently")
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	return &SessionResult{
		TokenPair: TokenPair{
			AccessToken:      access.token,
			AccessExpiresAt:  access.expiresAt,
			RefreshToken:     refresh,
			RefreshExpiresAt: refreshExpires,
		},
		Account: account,
	}, nil
}

// Revoke ends the session holding refreshToken. Issued access tokens stay valid until they expire.
func (s *AuthService) Revoke(ctx context.Context, refreshToken string) (err error) {
	defer func() { observe("revoke", err) }()

	if refreshToken == "" {
		return fmt.Errorf("%w: refresh token is required", ErrValidation)
	}
	if err := s.store.RevokeRefreshToken(ctx, utils.HashToken(refreshToken), s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Logout revokes refreshToken only if it belongs to accountID.
func (s *AuthService) Logout(ctx context.Context, accountID uint, refreshToken string) (err error) {
	defer func() { observe("logout", err) }()

	if refreshToken == "" {
		return fmt.Errorf("%w: refresh token is required", ErrValidation)
	}
	hash := utils.HashToken(refreshToken)
	account, err := s.store.FindByRefreshToken(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("find refresh token: %w", err)
	}
	if account.ID != accountID {
		return ErrNotFound
	}
	if err := s.store.RevokeRefreshToken(ctx, hash, s.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// VerifyEmail redeems a verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (err error) {
	defer func() { observe("verify_email", err) }()

	if token == "" {
		return ErrInvalidToken
	}
	hash := utils.HashToken(token)
	account, err := s.store.FindByVerificationToken(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("find verification token: %w", err)
	}
	if expired(account.VerificationExpiresAt, s.now().UTC()) {
		return ErrExpired
	}

	if err := s.store.ConsumeVerificationToken(ctx, account.ID, hash); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return ErrInvalidToken
		}
		return fmt.Errorf("consume verification token: %w", err)
	}

	account.EmailVerified = true
	account.VerificationTokenHash = nil
	account.VerificationExpiresAt = nil
	if s.notifier != nil {
		if nerr := s.notifier.EmailVerified(ctx, account); nerr != nil {
			logger.Warn().Err(nerr).Uint("account_id", account.ID).Msg("verified-email notification failed")
		}
	}
	logger.Info().Uint("account_id", account.ID).Msg("email verified")
	return nil
}

// ResendVerification replaces the outstanding verification token of an unverified account.
func (s *AuthService) ResendVerification(ctx context.Context, email string) (err error) {
	defer func() { observe("resend_verification", err) }()

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}
	if account.EmailVerified {
		return ErrAlreadyVerified
	}
	ttl := time.Duration(s.authCfg.ResendVerificationHours) * time.Hour
	return s.issueVerification(ctx, account, ttl)
}

// ForgotPassword issues a reset token. Unknown emails are acknowledged the
// same way so callers cannot tell which addresses are registered.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (err error) {
	defer func() { observe("forgot_password", err) }()

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Info().Msg("password reset requested for unknown email")
			return nil
		}
		return err
	}

	token, hash := utils.NewSingleUseToken()
	expiresAt := s.now().UTC().Add(time.Duration(s.authCfg.ResetTokenMinutes) * time.Minute)
	if err := s.store.SetResetToken(ctx, account.ID, hash, expiresAt); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	if s.notifier != nil {
		if nerr := s.notifier.PasswordResetIssued(ctx, account, token, expiresAt); nerr != nil {
			logger.Warn().Err(nerr).Uint("account_id", account.ID).Msg("password reset notification failed")
		}
	}
	return nil
}

// ResetPassword redeems a reset token and installs newPassword.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) (err error) {
	defer func() { observe("reset_password", err) }()

	if token == "" {
		return ErrInvalidToken
	}
	if err := s.validatePassword(newPassword); err != nil {
		return err
	}

	hash := utils.HashToken(token)
	account, err := s.store.FindByResetToken(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("find reset token: %w", err)
	}
	if expired(account.ResetExpiresAt, s.now().UTC()) {
		return ErrExpired
	}

	passwordHash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.ConsumeResetToken(ctx, account.ID, hash, passwordHash); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return ErrInvalidToken
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	logger.Info().Uint("account_id", account.ID).Msg("password reset")
	return nil
}

// ChangePassword requires the current password before accepting a new one.
func (s *AuthService) ChangePassword(ctx context.Context, accountID uint, req *ChangePasswordRequest) (err error) {
	defer func() { observe("change_password", err) }()

	account, err := s.GetProfile(ctx, accountID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(req.OldPassword, account.PasswordHash) {
		return ErrInvalidCredential
	}
	if err := s.validatePassword(req.NewPassword); err != nil {
		return err
	}

	hash, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdatePassword(ctx, accountID, hash); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *AuthService) GetProfile(ctx context.Context, accountID uint) (*models.Account, error) {
	account, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}

type UpdateProfileRequest struct {
	FullName   *string `json:"full_name"`
	Phone      *string `json:"phone"`
	Profession *string `json:"profession"`
	Gender     *string `json:"gender"`
}

func (s *AuthService) UpdateProfile(ctx context.Context, accountID uint, req *UpdateProfileRequest) (*models.Account, error) {
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, fmt.Errorf("%w: full name cannot be empty", ErrValidation)
		}
		req.FullName = &name
	}

	account, err := s.store.UpdateProfile(ctx, accountID, repository.ProfileUpdate{
		FullName:   req.FullName,
		Phone:      req.Phone,
		Profession: req.Profession,
		Gender:     req.Gender,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return account, nil
}

func (s *AuthService) findByEmail(ctx context.Context, email string) (*models.Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrValidation)
	}
	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}

func (s *AuthService) issueVerification(ctx context.Context, account *models.Account, ttl time.Duration) error {
	token, hash := utils.NewSingleUseToken()
	expiresAt := s.now().UTC().Add(ttl)
	if err := s.store.SetVerificationToken(ctx, account.ID, hash, expiresAt); err != nil {
		return fmt.Errorf("store verification token: %w", err)
	}
	account.VerificationTokenHash = &hash
	account.VerificationExpiresAt = &expiresAt

	if s.notifier != nil {
		if err := s.notifier.VerificationIssued(ctx, account, token, expiresAt); err != nil {
			logger.Warn().Err(err).Uint("account_id", account.ID).Msg("verification notification failed")
		}
	}
	return nil
}

type mintedAccess struct {
	token     string
	expiresAt time.Time
}

func (s *AuthService) mintAccess(account *models.Account) (*mintedAccess, error) {
	ttl := time.Duration(s.jwtCfg.AccessTokenMinutes) * time.Minute
	token, expiresAt, err := utils.GenerateToken(account.ID, account.Email, account.Role, account.FullName, ttl)
	if err != nil {
		return nil, fmt.Errorf("mint access token: %w", err)
	}
	return &mintedAccess{token: token, expiresAt: expiresAt}, nil
}

func (s *AuthService) refreshTTL() time.Duration {
	return time.Duration(s.jwtCfg.RefreshTokenDays) * 24 * time.Hour
}

func (s *AuthService) validatePassword(password string) error {
	if len(password) < s.authCfg.PasswordMinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, s.authCfg.PasswordMinLength)
	}
	if len(password) > utils.MaxPasswordBytes {
		return fmt.Errorf("%w: password must be at most %d bytes", ErrValidation, utils.MaxPasswordBytes)
	}
	return nil
}

func (s *AuthService) recordFailure(ctx context.Context, email string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.RecordFailure(ctx, email); err != nil {
		logger.Warn().Err(err).Msg("failed to record login failure")
	}
}

// expired treats a missing expiry as expired. Deadlines are inclusive of now.
func expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt == nil || !now.Before(*expiresAt)
}
