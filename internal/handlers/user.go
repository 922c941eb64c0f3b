package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/machines3d/authority/internal/middleware"
	"github.com/machines3d/authority/internal/services"
	"github.com/machines3d/authority/pkg/response"
)

type UserHandler struct {
	authService *services.AuthService
}

func NewUserHandler(authService *services.AuthService) *UserHandler {
	return &UserHandler{authService: authService}
}

func (h *UserHandler) GetProfile(c *gin.Context) {
	account, err := h.authService.GetProfile(c.Request.Context(), middleware.GetAccountID(c))
	if err != nil {
		respondError(c, err, http.StatusUnauthorized)
		return
	}
	response.Success(c, account)
}

func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	account, err := h.authService.UpdateProfile(c.Request.Context(), middleware.GetAccountID(c), &req)
	if err != nil {
		respondError(c, err, http.StatusUnauthorized)
		return
	}
	response.Success(c, account)
}

func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req services.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.authService.ChangePassword(c.Request.Context(), middleware.GetAccountID(c), &req)
	if errors.Is(err, services.ErrInvalidCredential) {
		// The caller is signed in; a wrong current password is a bad request, not a lost session.
		response.BadRequest(c, "current password is incorrect")
		return
	}
	if err != nil {
		respondError(c, err, http.StatusUnauthorized)
		return
	}
	response.Success(c, gin.H{"message": "Password changed"})
}
