package http

import (
	"net/http"

	"smartclean/internal/core/domain"
	"smartclean/internal/core/ports"

	"github.com/gin-gonic/gin"
)

var intentMessages = map[domain.DeviceIntent]string{
	domain.IntentStart:  "Robot started cleaning",
	domain.IntentStop:   "Robot stopped",
	domain.IntentReboot: "Robot rebooting",
}

type DeviceHandler struct {
	scheduler ports.TurnScheduler
}

var _ ports.HTTPHandler = (*DeviceHandler)(nil)

func NewDeviceHandler(scheduler ports.TurnScheduler) *DeviceHandler {
	return &DeviceHandler{scheduler: scheduler}
}

func (h *DeviceHandler) RegisterRoutes(api *gin.RouterGroup) {
	robot := api.Group("/robot")
	{
		robot.POST("/start", h.intent(domain.IntentStart))
		robot.POST("/stop", h.intent(domain.IntentStop))
		robot.POST("/reboot", h.intent(domain.IntentReboot))
	}
}

// intent builds the handler for one robot command. The body and its
// email field are optional.
func (h *DeviceHandler) intent(intent domain.DeviceIntent) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req identityRequest
		if err := bindOptionalJSON(c, &req); err != nil {
			fail(c, err)
			return
		}

		if err := h.scheduler.Device(c.Request.Context(), intent, req.Email); err != nil {
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": intentMessages[intent],
		})
	}
}
