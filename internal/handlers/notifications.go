package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/machines3d/authority/internal/middleware"
	"github.com/machines3d/authority/internal/services"
	"github.com/machines3d/authority/pkg/logger"
	"github.com/machines3d/authority/pkg/response"
)

type NotificationHandler struct {
	hub *services.NotificationHub
}

func NewNotificationHandler(hub *services.NotificationHub) *NotificationHandler {
	return &NotificationHandler{hub: hub}
}

// Stream pushes account events over Server-Sent Events. EventSource cannot set
// headers, so the access token may also arrive as ?token=.
func (h *NotificationHandler) Stream(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c)
	}
	if token == "" {
		response.Unauthorized(c, "Unauthorized")
		return
	}
	if !middleware.SetClaims(c, token) {
		response.Error(c, response.New(http.StatusUnauthorized, response.CodeInvalidToken, "invalid token"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	clientID := uuid.New().String()
	accountID := middleware.GetAccountID(c)

	events := h.hub.Subscribe(clientID, accountID, isAdmin(c))
	defer h.hub.Unsubscribe(clientID)

	logger.Info().Str("client_id", clientID).Uint("account_id", accountID).Int("total", h.hub.ClientCount()).Msg("notification stream connected")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-events:
			if !ok {
				return false
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Error().Err(err).Msg("notification marshal error")
				return true
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			return true
		case <-c.Request.Context().Done():
			logger.Info().Str("client_id", clientID).Msg("notification stream disconnected")
			return false
		}
	})
}
