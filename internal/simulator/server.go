package simulator

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"blinds_bridge/internal/gateway"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 1 << 12 // 4 KB
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	conn       *websocket.Conn
	mu         sync.Mutex
	subscribed bool
}

func (c *client) write(f gateway.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

// Handler returns the gateway's HTTP surface.
func (s *Simulator) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.POST(gateway.AuthPath, s.authenticate)
	router.GET(gateway.ObservePath, s.observe)
	return router
}

func (s *Simulator) authenticate(c *gin.Context) {
	var req gateway.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.SecurityCode == "" || req.SecurityCode != s.securityCode {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid security code"})
		return
	}
	if req.Identity == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identity required"})
		return
	}

	psk, err := newPSK()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "psk generation failed"})
		return
	}
	s.mu.Lock()
	s.identities[req.Identity] = psk
	s.mu.Unlock()

	s.log.Infow("sim_identity_issued", "identity", req.Identity)
	c.JSON(http.StatusOK, gateway.AuthResponse{Identity: req.Identity, PSK: psk})
}

func (s *Simulator) pskFor(identity string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	psk, ok := s.identities[identity]
	return psk, ok
}

// RevokeIdentities forgets every issued PSK, so clients must authenticate again.
func (s *Simulator) RevokeIdentities() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = make(map[string]string)
}

func (s *Simulator) observe(c *gin.Context) {
	raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if raw == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	identity, err := gateway.VerifyChannelToken(raw, s.pskFor)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Errorw("sim_ws_upgrade_failed", "err", err)
		return
	}
	cl := &client{conn: conn}
	s.mu.Lock()
	s.clients[cl] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, cl)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	s.log.Infow("sim_client_connected", "identity", identity)

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go s.pinger(cl, done)
	defer close(done)

	for {
		var f gateway.Frame
		if err := conn.ReadJSON(&f); err != nil {
			s.log.Infow("sim_client_closed", "identity", identity, "err", err)
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := s.handleFrame(cl, f); err != nil {
			return
		}
	}
}

func (s *Simulator) handleFrame(cl *client, f gateway.Frame) error {
	switch f.Type {
	case gateway.FrameSubscribe:
		if err := cl.write(gateway.Frame{Type: gateway.FrameSubscribed}); err != nil {
			return err
		}
		s.mu.Lock()
		cl.subscribed = true
		s.mu.Unlock()
		// observers get the current state of every device right away
		for _, st := range s.snapshot() {
			st := st
			if err := cl.write(gateway.Frame{Type: gateway.FrameDeviceUpdated, Device: &st}); err != nil {
				return err
			}
		}
	case gateway.FrameCommand:
		ack := gateway.Frame{Type: gateway.FrameAck, ID: f.ID, OK: true}
		switch {
		case f.Position == nil:
			ack.OK, ack.Error = false, "position required"
		default:
			if reason := s.command(f.DeviceID, *f.Position); reason != "" {
				ack.OK, ack.Error = false, reason
			}
		}
		return cl.write(ack)
	}
	return nil
}

func (s *Simulator) pinger(cl *client, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Simulator) broadcast(f gateway.Frame) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for cl := range s.clients {
		if cl.subscribed {
			targets = append(targets, cl)
		}
	}
	s.mu.Unlock()

	for _, cl := range targets {
		if err := cl.write(f); err != nil {
			s.log.Infow("sim_broadcast_failed", "err", err)
		}
	}
}

// DropClients closes every observe channel, as a gateway reboot would.
func (s *Simulator) DropClients() {
	s.closeClients()
}

func (s *Simulator) closeClients() {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for cl := range s.clients {
		targets = append(targets, cl)
	}
	s.mu.Unlock()
	for _, cl := range targets {
		_ = cl.conn.Close()
	}
}

// Clients returns the number of open observe channels.
func (s *Simulator) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func newPSK() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
