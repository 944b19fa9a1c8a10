package handlers

import (
	"context"
	"net/http"
	"time"

	"blinds_bridge/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Send/receive timing configuration and message size limits.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB

	msgState    = "state"
	msgSnapshot = "snapshot"
)

// Envelope used for WebSocket messages.
type wsEnvelope struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origins once the controller UI has a fixed host
}

// @Summary      Stream accessory snapshots
// @Description  Sends every snapshot once as type=state, then one type=snapshot message per change. Optional ?device= filters to one blind.
// @Tags         accessories
// @Param        device  query  string  false  "Device id"
// @Router       /ws [get]
func (h *Handler) wsConnect(c *gin.Context) {
	device := c.Query("device")

	// Subscribe before the initial read so no change is lost in between.
	updates, cancel := h.services.Subscribe()
	defer cancel()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Errorw("ws_upgrade_failed", "err", err)
		}
		return
	}
	defer func() { _ = conn.Close() }()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go h.startReader(conn, done)

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := h.sendState(c.Request.Context(), conn, device); err != nil {
		if h.log != nil {
			h.log.Infow("ws_write_failed_initial", "err", err)
		}
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if h.log != nil {
					h.log.Infow("ws_ping_failed", "err", err)
				}
				return
			}
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if device != "" && snap.DeviceID != device {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(wsEnvelope{Type: msgSnapshot, Data: snap}); err != nil {
				if h.log != nil {
					h.log.Infow("ws_write_failed", "err", err)
				}
				return
			}
		}
	}
}

// Helper: startReader drains incoming messages to handle control frames and detect closure.
func (h *Handler) startReader(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if h.log != nil {
				h.log.Infow("ws_read_closed", "err", err)
			}
			return
		}
	}
}

// Helper: sendState writes the current snapshots with a write deadline.
// An unknown device filter is reported in the envelope and closes the stream.
func (h *Handler) sendState(ctx context.Context, conn *websocket.Conn, device string) error {
	var data []models.DeviceSnapshot
	if device == "" {
		all, err := h.services.ListSnapshots(ctx)
		if err != nil {
			return h.writeWSError(conn, err)
		}
		data = all
	} else {
		snap, err := h.services.GetSnapshot(ctx, device)
		if err != nil {
			return h.writeWSError(conn, err)
		}
		data = []models.DeviceSnapshot{snap}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: msgState, Data: data})
}

func (h *Handler) writeWSError(conn *websocket.Conn, err error) error {
	if h.log != nil {
		h.log.Errorw("ws_get_state_failed", "err", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(wsEnvelope{Type: "error", Error: err.Error()})
	return err
}
