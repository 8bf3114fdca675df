package observer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"smartclean/internal/core/ports"
	"smartclean/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Config struct {
	Buffer         int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		Buffer:         16,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// Handler serves the two push transports: Server-Sent Events on
// /queue/updates and WebSocket on /queue/ws. Both carry the same snapshots.
type Handler struct {
	registry ports.ObserverRegistry
	cfg      Config
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger
}

var _ ports.HTTPHandler = (*Handler)(nil)

func NewHandler(registry ports.ObserverRegistry, cfg Config, logger *zap.SugaredLogger) *Handler {
	def := DefaultConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = def.AllowedOrigins
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	h := &Handler{
		registry: registry,
		cfg:      cfg,
		logger:   logger,
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:     h.checkOrigin,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	return h
}

func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/queue/updates", h.ServeSSE)
	api.GET("/queue/ws", h.ServeWebSocket)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// ServeSSE streams `data: <json>` frames, one per snapshot, starting with
// the current state. Comment lines keep idle proxies from closing the stream.
func (h *Handler) ServeSSE(c *gin.Context) {
	ctx, span := tracing.TraceObserver(c.Request.Context(), "sse", "")
	defer span.End()

	w := c.Writer
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	sink := NewChannelSink("sse", h.cfg.Buffer)
	tracing.AddSpanAttributes(ctx, tracing.ObserverIDKey.String(sink.ID()))
	h.registry.Subscribe(sink)
	defer h.registry.Unsubscribe(sink.ID())

	start := time.Now()
	h.logger.Infow("SSE observer connected", "observer_id", sink.ID(), "remote_addr", c.ClientIP())
	defer func() {
		tracing.MeasureDuration(ctx, start, "sse.stream")
		h.logger.Infow("SSE observer disconnected", "observer_id", sink.ID(), "duration", time.Since(start))
	}()

	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sink.Done():
			h.logger.Debugw("SSE observer dropped by hub", "observer_id", sink.ID())
			return
		case snap := <-sink.Updates():
			payload, err := json.Marshal(snap)
			if err != nil {
				h.logger.Errorw("failed to encode snapshot", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			w.Flush()
		case <-ping.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			w.Flush()
		}
	}
}

// ServeWebSocket sends one JSON text message per snapshot. Inbound
// messages are read only to notice pongs and disconnects.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sink := NewChannelSink("ws", h.cfg.Buffer)
	ctx, span := tracing.TraceObserver(c.Request.Context(), "websocket", sink.ID())
	defer span.End()

	h.registry.Subscribe(sink)
	defer h.registry.Unsubscribe(sink.ID())

	h.logger.Infow("WebSocket observer connected", "observer_id", sink.ID(), "remote_addr", c.ClientIP())

	readTimeout := 2 * h.cfg.PingInterval
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(h.cfg.PingInterval)
	defer pingTicker.Stop()

	errorChan := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
	}()

	for {
		select {
		case snap := <-sink.Updates():
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				h.logger.Infow("error sending snapshot", "observer_id", sink.ID(), "error", err)
				goto cleanup
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Infow("error sending ping", "observer_id", sink.ID(), "error", err)
				goto cleanup
			}

		case <-sink.Done():
			conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "observer too slow"))
			goto cleanup

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Infow("error reading from observer", "observer_id", sink.ID(), "error", err)
			}
			goto cleanup

		case <-ctx.Done():
			goto cleanup
		}
	}

cleanup:
	h.logger.Infow("WebSocket observer disconnected", "observer_id", sink.ID())
}
