package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/machines3d/authority/internal/services"
	"github.com/machines3d/authority/pkg/response"
)

type SystemLogHandler struct {
	systemLogService *services.SystemLogService
}

func NewSystemLogHandler(systemLogService *services.SystemLogService) *SystemLogHandler {
	return &SystemLogHandler{systemLogService: systemLogService}
}

// List pages through the audit trail. Admin only.
func (h *SystemLogHandler) List(c *gin.Context) {
	var req services.SystemLogListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.systemLogService.List(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, 0)
		return
	}
	response.Success(c, resp)
}
