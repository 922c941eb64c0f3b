package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/machines3d/authority/internal/services"
	"github.com/machines3d/authority/pkg/logger"
	"github.com/machines3d/authority/pkg/response"
)

// appError maps an AuthService error to its HTTP form. tokenStatus is the
// status used for invalid or expired tokens: 401 for session tokens, 400 for
// single-use links.
func appError(err error, tokenStatus int) *response.AppError {
	switch {
	case errors.Is(err, services.ErrValidation):
		return response.NewBadRequest(err.Error())
	case errors.Is(err, services.ErrInvalidCredential):
		return response.NewUnauthorized(services.ErrInvalidCredential.Error())
	case errors.Is(err, services.ErrInvalidToken):
		return response.New(tokenStatus, response.CodeInvalidToken, "invalid token")
	case errors.Is(err, services.ErrExpired):
		return response.New(tokenStatus, response.CodeTokenExpired, "token expired")
	case errors.Is(err, services.ErrForbidden):
		return response.NewForbidden("account is not permitted to sign in")
	case errors.Is(err, services.ErrEmailNotVerified):
		return response.New(http.StatusForbidden, response.CodeEmailNotVerified, "email address not verified")
	case errors.Is(err, services.ErrDuplicateEmail):
		return response.New(http.StatusConflict, response.CodeDuplicateEmail, "email already registered")
	case errors.Is(err, services.ErrAlreadyVerified):
		return response.New(http.StatusConflict, response.CodeAlreadyVerified, "email already verified")
	case errors.Is(err, services.ErrNotFound):
		return response.NewNotFound(err.Error())
	case errors.Is(err, services.ErrTooManyAttempts):
		return response.NewTooManyRequests("too many failed login attempts, try again later")
	default:
		return response.NewServerError("internal server error")
	}
}

func respondError(c *gin.Context, err error, tokenStatus int) {
	appErr := appError(err, tokenStatus)
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	response.Error(c, appErr)
}
