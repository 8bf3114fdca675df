package http

import (
	"errors"
	"net/http"

	"smartclean/internal/core/domain"
	"smartclean/internal/core/ports"
	apperrors "smartclean/pkg/errors"

	"github.com/gin-gonic/gin"
)

type QueueHandler struct {
	scheduler ports.TurnScheduler
}

var _ ports.HTTPHandler = (*QueueHandler)(nil)

func NewQueueHandler(scheduler ports.TurnScheduler) *QueueHandler {
	return &QueueHandler{scheduler: scheduler}
}

func (h *QueueHandler) RegisterRoutes(api *gin.RouterGroup) {
	queue := api.Group("/queue")
	{
		queue.POST("/join", h.Join)
		queue.POST("/leave", h.Leave)
		queue.GET("/position/:email", h.Position)
		queue.GET("/status/:email", h.PersonalStatus)
		queue.GET("/can-join/:email", h.CanJoin)
		queue.GET("/status", h.Status)
	}
}

func (h *QueueHandler) Join(c *gin.Context) {
	var req identityRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	res, err := h.scheduler.Join(c.Request.Context(), req.Email)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queueCount":        res.QueueCount,
		"position":          res.Position,
		"estimatedWaitTime": res.EstimatedWaitTime,
		"success":           true,
	})
}

func (h *QueueHandler) Leave(c *gin.Context) {
	var req identityRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		fail(c, err)
		return
	}

	res, err := h.scheduler.Leave(c.Request.Context(), req.Email)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"queueCount": res.QueueCount,
		"message":    "Successfully left queue",
	})
}

func (h *QueueHandler) Position(c *gin.Context) {
	pos, err := h.scheduler.Position(c.Request.Context(), c.Param("email"))
	if errors.Is(err, domain.ErrNotInLine) {
		fail(c, apperrors.NewAppError(apperrors.ErrCodeNotInLine, "User not in queue", http.StatusNotFound))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"position":          pos.Position,
		"queueCount":        pos.QueueCount,
		"estimatedWaitTime": pos.EstimatedWaitTime,
		"isCurrentTurn":     pos.IsCurrentTurn,
	})
}

func (h *QueueHandler) PersonalStatus(c *gin.Context) {
	st := h.scheduler.PersonalStatus(c.Request.Context(), c.Param("email"))

	c.JSON(http.StatusOK, gin.H{
		"email":             st.Identity,
		"isInQueue":         st.IsInQueue,
		"isCurrentTurn":     st.IsCurrentTurn,
		"position":          st.Position,
		"queueCount":        st.QueueCount,
		"estimatedWaitTime": st.EstimatedWaitTime,
		"hasSession":        st.HasSession,
		"lastActivity":      st.LastActivity,
		"turnCount":         st.TurnCount,
	})
}

func (h *QueueHandler) CanJoin(c *gin.Context) {
	res, err := h.scheduler.CanJoin(c.Request.Context(), c.Param("email"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":         res.Identity,
		"canJoin":       res.CanJoin,
		"isInQueue":     res.IsInQueue,
		"isCurrentTurn": res.IsCurrentTurn,
		"reason":        res.Reason,
	})
}

func (h *QueueHandler) Status(c *gin.Context) {
	st := h.scheduler.QueueStatus(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"queueCount":     st.QueueCount,
		"currentTurn":    st.CurrentTurn,
		"robotStatus":    st.RobotStatus,
		"turnStartTime":  st.TurnStartTime,
		"timeRemaining":  st.TimeRemaining,
		"queue":          st.Queue,
		"activeSessions": st.ActiveSessions,
	})
}
