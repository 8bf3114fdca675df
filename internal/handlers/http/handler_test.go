package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smartclean/internal/core/services"
	"smartclean/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T) (*gin.Engine, *services.Scheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sched := services.NewScheduler(services.DefaultOptions())
	t.Cleanup(sched.Close)

	logger := zap.NewNop().Sugar()
	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))

	api := router.Group("/api")
	NewQueueHandler(sched).RegisterRoutes(api)
	NewDeviceHandler(sched).RegisterRoutes(api)
	NewAdminHandler(sched, logger).RegisterRoutes(api)
	NewHealthHandler(sched, func() time.Duration { return 90 * time.Second }).RegisterRoutes(api)
	return router, sched
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func email(addr string) gin.H {
	return gin.H{"email": addr}
}

func TestJoin(t *testing.T) {
	router, _ := newTestRouter(t)

	w, body := do(t, router, http.MethodPost, "/api/queue/join", email("alice@example.com"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 1, body["queueCount"])
	assert.EqualValues(t, 1, body["position"])
	assert.EqualValues(t, 0, body["estimatedWaitTime"])

	w, body = do(t, router, http.MethodPost, "/api/queue/join", email("bob@example.com"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["position"])
	assert.EqualValues(t, 4, body["estimatedWaitTime"])
}

func TestJoin_Errors(t *testing.T) {
	router, _ := newTestRouter(t)

	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("alice@example.com"))

	tests := []struct {
		name    string
		body    interface{}
		status  int
		code    string
		message string
	}{
		{"missing", gin.H{}, http.StatusBadRequest, "MISSING_IDENTITY", "Email required"},
		{"empty body", nil, http.StatusBadRequest, "MISSING_IDENTITY", "Email required"},
		{"invalid", email("not-an-email"), http.StatusBadRequest, "INVALID_IDENTITY", "Invalid email format"},
		{"active", email("alice@example.com"), http.StatusBadRequest, "ALREADY_ACTIVE", "Already your turn"},
		{"malformed", `{"email":`, http.StatusBadRequest, "INVALID_INPUT", "Malformed JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := do(t, router, http.MethodPost, "/api/queue/join", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, body["error"])
			assert.Equal(t, tt.message, body["message"])
		})
	}
}

func TestLeave(t *testing.T) {
	router, sched := newTestRouter(t)

	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("alice@example.com"))
	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("bob@example.com"))

	w, body := do(t, router, http.MethodPost, "/api/queue/leave", email("bob@example.com"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Successfully left queue", body["message"])
	assert.EqualValues(t, 1, body["queueCount"])

	w, body = do(t, router, http.MethodPost, "/api/queue/leave", email("bob@example.com"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_IN_LINE", body["error"])
	assert.Equal(t, "User not found in queue", body["message"])

	// The active identity leaving ends the turn.
	w, _ = do(t, router, http.MethodPost, "/api/queue/leave", email("alice@example.com"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, sched.RemainingTime())
}

func TestPosition(t *testing.T) {
	router, _ := newTestRouter(t)

	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("alice@example.com"))
	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("bob@example.com"))

	w, body := do(t, router, http.MethodGet, "/api/queue/position/alice@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["position"])
	assert.Equal(t, true, body["isCurrentTurn"])

	w, body = do(t, router, http.MethodGet, "/api/queue/position/bob@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["position"])
	assert.EqualValues(t, 2, body["queueCount"])
	assert.Equal(t, false, body["isCurrentTurn"])

	w, body = do(t, router, http.MethodGet, "/api/queue/position/carol@example.com", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not in queue", body["message"])
}

func TestPersonalStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	w, body := do(t, router, http.MethodGet, "/api/queue/status/ghost@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["isInQueue"])
	assert.Equal(t, false, body["hasSession"])
	assert.Nil(t, body["position"])
	assert.Nil(t, body["lastActivity"])

	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("alice@example.com"))

	w, body = do(t, router, http.MethodGet, "/api/queue/status/alice@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice@example.com", body["email"])
	assert.Equal(t, true, body["isInQueue"])
	assert.Equal(t, true, body["isCurrentTurn"])
	assert.Equal(t, true, body["hasSession"])
	assert.EqualValues(t, 1, body["position"])
	assert.EqualValues(t, 1, body["turnCount"])
	assert.NotNil(t, body["lastActivity"])
}

func TestCanJoin(t *testing.T) {
	router, _ := newTestRouter(t)

	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("alice@example.com"))
	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("bob@example.com"))

	tests := []struct {
		addr    string
		canJoin bool
		reason  interface{}
	}{
		{"alice@example.com", false, "Already your turn"},
		{"bob@example.com", false, "Already in queue"},
		{"carol@example.com", true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			w, body := do(t, router, http.MethodGet, "/api/queue/can-join/"+tt.addr, nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.canJoin, body["canJoin"])
			assert.Equal(t, tt.reason, body["reason"])
		})
	}

	w, body := do(t, router, http.MethodGet, "/api/queue/can-join/nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_IDENTITY", body["error"])
}

func TestQueueStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	w, body := do(t, router, http.MethodGet, "/api/queue/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["queueCount"])
	assert.Nil(t, body["currentTurn"])
	assert.Equal(t, "idle", body["robotStatus"])
	assert.Nil(t, body["timeRemaining"])

	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("alice@example.com"))

	w, body = do(t, router, http.MethodGet, "/api/queue/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice@example.com", body["currentTurn"])
	assert.EqualValues(t, 240, body["timeRemaining"])
	assert.EqualValues(t, 1, body["activeSessions"])
	assert.Equal(t, []interface{}{"alice@example.com"}, body["queue"])
}

func TestDeviceIntents(t *testing.T) {
	router, _ := newTestRouter(t)

	w, body := do(t, router, http.MethodPost, "/api/robot/start", email("alice@example.com"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NO_ACTIVE_TURN", body["error"])
	assert.Equal(t, "No active user", body["message"])

	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("alice@example.com"))
	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("bob@example.com"))

	w, body = do(t, router, http.MethodPost, "/api/robot/start", email("bob@example.com"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_YOUR_TURN", body["error"])
	assert.Equal(t, "Not your turn", body["message"])

	_, status := do(t, router, http.MethodGet, "/api/queue/status", nil)
	assert.Equal(t, "idle", status["robotStatus"])

	tests := []struct {
		path    string
		body    interface{}
		message string
		status  string
	}{
		{"/api/robot/start", email("alice@example.com"), "Robot started cleaning", "active"},
		{"/api/robot/stop", nil, "Robot stopped", "stopped"},
	}
	for _, tt := range tests {
		w, body = do(t, router, http.MethodPost, tt.path, tt.body)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, tt.message, body["message"])

		_, status = do(t, router, http.MethodGet, "/api/queue/status", nil)
		assert.Equal(t, tt.status, status["robotStatus"])
	}
}

func TestClearQueue(t *testing.T) {
	router, _ := newTestRouter(t)

	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("alice@example.com"))
	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("bob@example.com"))

	w, body := do(t, router, http.MethodPost, "/api/admin/clear-queue", gin.H{"secret": "wrong"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED", body["error"])
	assert.Equal(t, "Unauthorized", body["message"])

	_, status := do(t, router, http.MethodGet, "/api/queue/status", nil)
	assert.EqualValues(t, 2, status["queueCount"])

	w, body = do(t, router, http.MethodPost, "/api/admin/clear-queue", gin.H{"secret": "admin123"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Queue cleared successfully", body["message"])
	assert.EqualValues(t, 2, body["clearedUsers"])

	_, status = do(t, router, http.MethodGet, "/api/queue/status", nil)
	assert.EqualValues(t, 0, status["queueCount"])
	assert.Nil(t, status["currentTurn"])
	assert.EqualValues(t, 2, status["activeSessions"])
}

func TestReset(t *testing.T) {
	router, _ := newTestRouter(t)

	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("alice@example.com"))

	w, body := do(t, router, http.MethodPost, "/api/debug/reset", gin.H{})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "System reset successfully", body["message"])

	prev, ok := body["previousState"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, prev["queueLength"])
	assert.Equal(t, "alice@example.com", prev["currentUser"])
	assert.Equal(t, "idle", prev["robotStatus"])
	assert.EqualValues(t, 1, prev["sessionCount"])

	_, status := do(t, router, http.MethodGet, "/api/queue/status", nil)
	assert.EqualValues(t, 0, status["queueCount"])
	assert.EqualValues(t, 0, status["activeSessions"])
}

func TestHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	_, _ = do(t, router, http.MethodPost, "/api/queue/join", email("alice@example.com"))

	w, body := do(t, router, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["queueLength"])
	assert.Equal(t, "alice@example.com", body["currentUser"])
	assert.EqualValues(t, 0, body["activeClients"])
	assert.EqualValues(t, 1, body["activeSessions"])
	assert.EqualValues(t, 90, body["uptime"])
	assert.Equal(t, []interface{}{"alice@example.com"}, body["sessionEmails"])
	assert.NotEmpty(t, body["timestamp"])
}
