package http

import (
	"net/http"
	"time"

	"smartclean/internal/core/ports"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	scheduler ports.TurnScheduler
	uptime    func() time.Duration
}

var _ ports.HTTPHandler = (*HealthHandler)(nil)

// NewHealthHandler reports uptime through the given func; nil measures
// from construction time.
func NewHealthHandler(scheduler ports.TurnScheduler, uptime func() time.Duration) *HealthHandler {
	if uptime == nil {
		started := time.Now()
		uptime = func() time.Duration { return time.Since(started) }
	}
	return &HealthHandler{scheduler: scheduler, uptime: uptime}
}

func (h *HealthHandler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/health", h.Health)
}

func (h *HealthHandler) Health(c *gin.Context) {
	report := h.scheduler.Health(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"status":         "healthy",
		"timestamp":      report.Timestamp,
		"activeClients":  report.ActiveClients,
		"queueLength":    report.QueueCount,
		"currentUser":    report.CurrentTurn,
		"robotStatus":    report.RobotStatus,
		"turnStartTime":  report.TurnStartTime,
		"timeRemaining":  report.TimeRemaining,
		"activeSessions": report.ActiveSessions,
		"uptime":         h.uptime().Seconds(),
		"queue":          report.Queue,
		"sessionEmails":  report.SessionSample,
	})
}
