package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/machines3d/authority/internal/services"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db    *gorm.DB
	queue services.TaskQueue
	hub   *services.NotificationHub
}

// NewHealthHandler accepts a nil db when accounts are held in memory.
func NewHealthHandler(db *gorm.DB, queue services.TaskQueue, hub *services.NotificationHub) *HealthHandler {
	return &HealthHandler{db: db, queue: queue, hub: hub}
}

func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	dbStatus := "memory"
	if h.db != nil {
		dbStatus = "ok"
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			dbStatus = "error: " + err.Error()
			overall = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	queueMode := "sync"
	if h.queue != nil && h.queue.IsAsync() {
		queueMode = "async (Redis)"
	}

	streamClients := 0
	if h.hub != nil {
		streamClients = h.hub.ClientCount()
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "authority",
		"components": gin.H{
			"database":       dbStatus,
			"queue_mode":     queueMode,
			"stream_clients": streamClients,
		},
	})
}
