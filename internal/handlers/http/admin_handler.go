package http

import (
	"net/http"

	"smartclean/internal/core/ports"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AdminHandler struct {
	scheduler ports.TurnScheduler
	logger    *zap.SugaredLogger
}

var _ ports.HTTPHandler = (*AdminHandler)(nil)

func NewAdminHandler(scheduler ports.TurnScheduler, logger *zap.SugaredLogger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &AdminHandler{scheduler: scheduler, logger: logger}
}

func (h *AdminHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.POST("/admin/clear-queue", h.ClearQueue)
	api.POST("/debug/reset", h.Reset)
}

func (h *AdminHandler) ClearQueue(c *gin.Context) {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := bindOptionalJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	cleared, err := h.scheduler.ClearQueue(c.Request.Context(), req.Secret)
	if err != nil {
		h.logger.Warnw("Rejected queue clear", "client_ip", c.ClientIP())
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Queue cleared successfully",
		"clearedUsers": cleared,
	})
}

func (h *AdminHandler) Reset(c *gin.Context) {
	prev := h.scheduler.Reset(c.Request.Context())

	h.logger.Infow("System reset via debug endpoint",
		"client_ip", c.ClientIP(),
		"queue_length", prev.QueueLength,
		"session_count", prev.SessionCount,
	)

	c.JSON(http.StatusOK, gin.H{
		"message": "System reset successfully",
		"previousState": gin.H{
			"queueLength":  prev.QueueLength,
			"currentUser":  prev.CurrentUser,
			"robotStatus":  prev.RobotStatus,
			"clientCount":  prev.ClientCount,
			"sessionCount": prev.SessionCount,
		},
	})
}
