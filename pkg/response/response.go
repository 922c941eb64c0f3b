package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Application codes for failures that share an HTTP status but need distinct
// client handling. Other errors use the HTTP status as their code.
const (
	CodeInvalidToken     = 40101
	CodeTokenExpired     = 40102
	CodeEmailNotVerified = 40301
	CodeDuplicateEmail   = 40901
	CodeAlreadyVerified  = 40902
)

// Response is the unified API response format.
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// AppError represents a structured application error with HTTP status and error code.
type AppError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *AppError) Error() string {
	return e.Message
}

func New(httpStatus, code int, msg string) *AppError {
	return &AppError{HTTPStatus: httpStatus, Code: code, Message: msg}
}

func NewBadRequest(msg string) *AppError {
	return New(http.StatusBadRequest, 400, msg)
}

func NewUnauthorized(msg string) *AppError {
	return New(http.StatusUnauthorized, 401, msg)
}

func NewForbidden(msg string) *AppError {
	return New(http.StatusForbidden, 403, msg)
}

func NewNotFound(msg string) *AppError {
	return New(http.StatusNotFound, 404, msg)
}

func NewConflict(msg string) *AppError {
	return New(http.StatusConflict, 409, msg)
}

func NewTooManyRequests(msg string) *AppError {
	return New(http.StatusTooManyRequests, 429, msg)
}

func NewServerError(msg string) *AppError {
	return New(http.StatusInternalServerError, 500, msg)
}

// --- Gin response helpers ---

func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    0,
		Message: "ok",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    0,
		Message: "created",
		Data:    data,
	})
}

// Error sends an error response. Errors that are not an *AppError become a
// generic 500 so internal details never reach the client.
func Error(c *gin.Context, err error) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		c.JSON(appErr.HTTPStatus, Response{
			Code:    appErr.Code,
			Message: appErr.Message,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, Response{
		Code:    500,
		Message: "internal server error",
	})
}

// Abort writes err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Error(c, err)
	c.Abort()
}

func BadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Code: 400, Message: msg})
}

func Unauthorized(c *gin.Context, msg string) {
	c.JSON(http.StatusUnauthorized, Response{Code: 401, Message: msg})
}

func Forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, Response{Code: 403, Message: msg})
}

func NotFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, Response{Code: 404, Message: msg})
}

func ServerError(c *gin.Context, msg string) {
	c.JSON(http.StatusInternalServerError, Response{Code: 500, Message: msg})
}
