package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/machines3d/authority/internal/middleware"
	"github.com/machines3d/authority/internal/models"
	"github.com/machines3d/authority/internal/services"
	"github.com/machines3d/authority/pkg/response"
)

type AuthHandler struct {
	authService *services.AuthService
	hub         *services.NotificationHub
}

func NewAuthHandler(authService *services.AuthService, hub *services.NotificationHub) *AuthHandler {
	return &AuthHandler{authService: authService, hub: hub}
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// SessionResponse is returned by login and refresh.
type SessionResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	AccountID        uint      `json:"account_id"`
	Email            string    `json:"email"`
	Role             string    `json:"role"`
	FullName         string    `json:"full_name"`
	Profession       string    `json:"profession"`
	Gender           string    `json:"gender"`
}

func newSessionResponse(result *services.SessionResult) *SessionResponse {
	a := result.Account
	return &SessionResponse{
		AccessToken:      result.AccessToken,
		AccessExpiresAt:  result.AccessExpiresAt,
		RefreshToken:     result.RefreshToken,
		RefreshExpiresAt: result.RefreshExpiresAt,
		AccountID:        a.ID,
		Email:            a.Email,
		Role:             a.Role,
		FullName:         a.FullName,
		Profession:       a.Profession,
		Gender:           a.Gender,
	}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	account, err := h.authService.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	services.LogInfo(services.ModuleAuth, "Register", fmt.Sprintf("Account %s registered", account.Email), &account.ID, c.ClientIP(), c.GetHeader("User-Agent"), nil)
	response.Created(c, account)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, services.ErrValidation) {
			services.LogWarning(services.ModuleAuth, "Login", fmt.Sprintf("Login failed for %s: %s", req.Email, services.ResultLabel(err)), nil, c.ClientIP(), c.GetHeader("User-Agent"), nil)
		}
		respondError(c, err, http.StatusUnauthorized)
		return
	}

	services.LogInfo(services.ModuleAuth, "Login", fmt.Sprintf("Account %s logged in", result.Account.Email), &result.Account.ID, c.ClientIP(), c.GetHeader("User-Agent"), nil)
	response.Success(c, newSessionResponse(result))
}

func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, err, http.StatusUnauthorized)
		return
	}
	response.Success(c, newSessionResponse(result))
}

func (h *AuthHandler) RevokeToken(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.authService.Revoke(c.Request.Context(), req.RefreshToken); err != nil {
		respondError(c, err, http.StatusUnauthorized)
		return
	}
	response.Success(c, gin.H{"message": "Token revoked"})
}

func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.BadRequest(c, "token is required")
		return
	}

	if err := h.authService.VerifyEmail(c.Request.Context(), token); err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}
	response.Success(c, gin.H{"message": "Email verified"})
}

func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.authService.ResendVerification(c.Request.Context(), req.Email); err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}
	response.Success(c, gin.H{"message": "Verification email sent"})
}

// ForgotPassword answers the same way whether or not the address is registered.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}
	response.Success(c, gin.H{"message": "If the address is registered, a reset link has been sent"})
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		respondError(c, err, http.StatusBadRequest)
		return
	}

	services.LogInfo(services.ModuleAuth, "ResetPassword", "Password reset via emailed token", nil, c.ClientIP(), c.GetHeader("User-Agent"), nil)
	response.Success(c, gin.H{"message": "Password has been reset"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	account, err := h.authService.GetProfile(c.Request.Context(), middleware.GetAccountID(c))
	if err != nil {
		respondError(c, err, http.StatusUnauthorized)
		return
	}
	response.Success(c, account)
}

// Logout ends the caller's own session and tells their open streams about it.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	accountID := middleware.GetAccountID(c)
	if err := h.authService.Logout(c.Request.Context(), accountID, req.RefreshToken); err != nil {
		respondError(c, err, http.StatusUnauthorized)
		return
	}

	if h.hub != nil {
		h.hub.PublishToAccount(accountID, services.Event{
			Type:      services.EventSessionRevoked,
			AccountID: accountID,
			At:        time.Now().UTC(),
		})
	}

	response.Success(c, gin.H{"message": "Logged out"})
}

func isAdmin(c *gin.Context) bool {
	return middleware.GetRole(c) == models.RoleAdmin
}
