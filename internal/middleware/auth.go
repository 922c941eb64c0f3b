package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/machines3d/authority/internal/models"
	"github.com/machines3d/authority/internal/utils"
	"github.com/machines3d/authority/pkg/response"
)

const (
	ContextAccountID = "account_id"
	ContextEmail     = "email"
	ContextRole      = "role"
	ContextFullName  = "full_name"
	ContextTokenID   = "token_id"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// AuthRequired validates the access token signature and expiry. The role is
// taken from the token as issued; storage is not consulted.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			response.Abort(c, response.NewUnauthorized("authorization header required"))
			return
		}

		token, ok := BearerToken(c)
		if !ok {
			response.Abort(c, response.NewUnauthorized("invalid authorization header format"))
			return
		}

		if !SetClaims(c, token) {
			response.Abort(c, response.New(401, response.CodeInvalidToken, "invalid or expired token"))
			return
		}

		c.Next()
	}
}

// SetClaims parses token and stores its claims on the context.
func SetClaims(c *gin.Context, token string) bool {
	claims, err := utils.ParseToken(token)
	if err != nil {
		return false
	}
	accountID, err := claims.AccountID()
	if err != nil {
		return false
	}

	c.Set(ContextAccountID, accountID)
	c.Set(ContextEmail, claims.Email)
	c.Set(ContextRole, claims.Role)
	c.Set(ContextFullName, claims.FullName)
	c.Set(ContextTokenID, claims.ID)
	return true
}

func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != models.RoleAdmin {
			response.Abort(c, response.NewForbidden("admin access required"))
			return
		}
		c.Next()
	}
}

func GetAccountID(c *gin.Context) uint {
	return c.GetUint(ContextAccountID)
}

func GetEmail(c *gin.Context) string {
	return c.GetString(ContextEmail)
}

func GetRole(c *gin.Context) string {
	return c.GetString(ContextRole)
}

func GetFullName(c *gin.Context) string {
	return c.GetString(ContextFullName)
}
