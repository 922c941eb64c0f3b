package middleware

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/machines3d/authority/internal/services"
)

const maxAuditBody = 2000

// AuditLog records authenticated write operations (POST/PUT/DELETE) to system_logs.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		var bodySnippet string
		if c.Request.Body != nil {
			bodyBytes, _ := io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			bodySnippet = maskSensitiveFields(string(bodyBytes))
			if len(bodySnippet) > maxAuditBody {
				bodySnippet = bodySnippet[:maxAuditBody] + "...[truncated]"
			}
		}

		c.Next()

		accountID := GetAccountID(c)
		status := c.Writer.Status()
		action := parseAction(c.FullPath(), method)

		var uid *uint
		if accountID > 0 {
			uid = &accountID
		}

		extra := map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"body":   bodySnippet,
		}
		message := formatAuditMessage(GetEmail(c), method, c.Request.URL.Path, status)
		if status >= 200 && status < 300 {
			services.LogInfo(services.ModuleAuth, action, message, uid, c.ClientIP(), c.Request.UserAgent(), extra)
		} else {
			services.LogWarning(services.ModuleAuth, action, message, uid, c.ClientIP(), c.Request.UserAgent(), extra)
		}
	}
}

// parseAction turns "/api/user/change-password" into "user.change_password".
func parseAction(fullPath, method string) string {
	path := strings.Trim(strings.TrimPrefix(fullPath, "/api/"), "/")
	if path == "" {
		return strings.ToLower(method)
	}
	path = strings.ReplaceAll(path, "-", "_")
	return strings.ReplaceAll(path, "/", ".")
}

func formatAuditMessage(email, method, path string, status int) string {
	var b strings.Builder
	if email == "" {
		email = "anonymous"
	}
	b.WriteString(email)
	b.WriteString(" ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	if status >= 200 && status < 300 {
		b.WriteString(" ok")
	} else {
		b.WriteString(" failed")
	}
	return b.String()
}

var sensitiveField = regexp.MustCompile(`(?i)("[a-z_]*(?:password|token|secret)[a-z_]*"\s*:\s*)"(?:[^"\\]|\\.)*"`)

// maskSensitiveFields blanks the string values of credential-like keys.
func maskSensitiveFields(body string) string {
	return sensitiveField.ReplaceAllString(body, `$1"***"`)
}
