package observer

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"smartclean/internal/core/domain"
	"smartclean/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, cfg Config) (*httptest.Server, *services.Scheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sched := services.NewScheduler(services.DefaultOptions())
	t.Cleanup(sched.Close)

	router := gin.New()
	NewHandler(sched, cfg, nil).RegisterRoutes(router.Group("/api"))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, sched
}

// readEvent returns the next data frame, skipping comment lines.
func readEvent(t *testing.T, r *bufio.Reader) domain.Snapshot {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var snap domain.Snapshot
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap))
		return snap
	}
}

func TestServeSSE_InitialSnapshotThenUpdates(t *testing.T) {
	srv, sched := newTestServer(t, DefaultConfig())

	_, err := sched.Join(context.Background(), "alice@example.com")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/queue/updates", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	assert.Equal(t, 1, first.QueueCount)
	require.NotNil(t, first.CurrentTurn)
	assert.Equal(t, domain.Identity("alice@example.com"), *first.CurrentTurn)
	assert.Equal(t, []domain.Identity{"alice@example.com"}, first.Queue)

	_, err = sched.Join(context.Background(), "bob@example.com")
	require.NoError(t, err)

	next := readEvent(t, reader)
	assert.Equal(t, 2, next.QueueCount)

	cancel()
	assert.Eventually(t, func() bool {
		return sched.Health(context.Background()).ActiveClients == 0
	}, time.Second, 10*time.Millisecond)
}

func TestServeSSE_SendsPingComments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PingInterval = 20 * time.Millisecond
	srv, _ := newTestServer(t, cfg)

	resp, err := http.Get(srv.URL + "/api/queue/updates")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, ": ping") {
			return
		}
	}
	t.Fatal("no ping comment received")
}

func TestServeWebSocket_StreamsSnapshots(t *testing.T) {
	srv, sched := newTestServer(t, DefaultConfig())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/queue/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first domain.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 0, first.QueueCount)
	assert.Nil(t, first.CurrentTurn)
	assert.Equal(t, domain.DeviceIdle, first.RobotStatus)

	_, err = sched.Join(context.Background(), "alice@example.com")
	require.NoError(t, err)

	// Join broadcasts once for the line change and once for the turn start.
	var snap domain.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	require.NoError(t, conn.ReadJSON(&snap))
	require.NotNil(t, snap.CurrentTurn)
	assert.Equal(t, domain.Identity("alice@example.com"), *snap.CurrentTurn)
	assert.NotNil(t, snap.TimeRemaining)
}

func TestServeWebSocket_RejectsForeignOrigin(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	srv, _ := newTestServer(t, cfg)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/queue/ws"
	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
