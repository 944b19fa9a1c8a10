package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"blinds_bridge/internal/logger"
	"blinds_bridge/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	updatesBuffer         = 256
	writeWait             = 10 * time.Second
	readWait              = 90 * time.Second
	defaultConnectTimeout = 10 * time.Second
)

var (
	errNotConnected  = errors.New("session not connected")
	errSessionClosed = errors.New("session closed")
)

// CredentialStore persists identity/PSK pairs between runs.
type CredentialStore interface {
	Load(ctx context.Context, host string) (models.GatewayCredentials, error)
	Save(ctx context.Context, creds models.GatewayCredentials) error
}

// Config describes how to reach and authenticate against the gateway.
type Config struct {
	URL            string
	SecurityCode   string
	Identity       string
	ConnectTimeout time.Duration
}

// Session is the single shared connection to the gateway. Connect may be
// called repeatedly; at most one connect sequence runs at a time.
type Session struct {
	cfg    Config
	creds  CredentialStore
	log    *logger.Logger
	client *http.Client
	dialer *websocket.Dialer
	now    func() time.Time

	connectMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	pending map[string]chan Frame
	writeMu sync.Mutex

	updates   chan models.DeviceUpdate
	closed    chan struct{}
	closeOnce sync.Once
}

// NewSession builds an unconnected session. creds may be nil, in which case
// every Connect authenticates with the security code.
func NewSession(cfg Config, creds CredentialStore, log *logger.Logger) *Session {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if log == nil {
		log = logger.Nop()
	}
	done := make(chan struct{})
	close(done)
	return &Session{
		cfg:     cfg,
		creds:   creds,
		log:     log,
		client:  &http.Client{},
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout},
		now:     time.Now,
		done:    done,
		pending: make(map[string]chan Frame),
		updates: make(chan models.DeviceUpdate, updatesBuffer),
		closed:  make(chan struct{}),
	}
}

// Updates delivers device-updated pushes, converted to accessory coordinates,
// in the order the gateway sent them.
func (s *Session) Updates() <-chan models.DeviceUpdate { return s.updates }

// Disconnected returns a channel closed when the current channel drops. When
// the session is not connected the returned channel is already closed.
func (s *Session) Disconnected() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Connected reports whether the observe channel is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Connect authenticates, opens the observe channel and subscribes to device
// updates. It is a no-op on a connected session.
func (s *Session) Connect(ctx context.Context) error {
	s.connectMu.Lock()
	defer s.connectMu.Unlock()

	select {
	case <-s.closed:
		return &ConnectionError{Kind: ChannelRefused, Err: errSessionClosed}
	default:
	}
	if s.Connected() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()

	err := s.connect(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !IsConnectionKind(err, AuthFailed) {
		err = &ConnectionError{Kind: ConnectTimeout, Err: ctx.Err()}
	}
	if err != nil {
		s.log.Warnw("gateway_connect_failed", "url", s.cfg.URL, "err", err)
		return err
	}
	s.log.Infow("gateway_connected", "url", s.cfg.URL)
	return nil
}

func (s *Session) connect(ctx context.Context) error {
	creds, stored, err := s.credentials(ctx)
	if err != nil {
		return err
	}

	conn, err := s.open(ctx, creds)
	if err != nil && stored && IsConnectionKind(err, ChannelRefused) {
		s.log.Infow("gateway_credentials_rejected", "identity", creds.Identity)
		if creds, err = s.authenticate(ctx); err != nil {
			return err
		}
		conn, err = s.open(ctx, creds)
	}
	if err != nil {
		return err
	}

	if err := s.subscribe(ctx, conn); err != nil {
		_ = conn.Close()
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.done = done
	s.mu.Unlock()

	go s.readLoop(conn, done)
	return nil
}

// credentials returns stored credentials when present, otherwise a fresh set.
func (s *Session) credentials(ctx context.Context) (models.GatewayCredentials, bool, error) {
	if s.creds != nil {
		c, err := s.creds.Load(ctx, s.cfg.URL)
		if err != nil {
			s.log.Warnw("gateway_credentials_load_failed", "err", err)
		} else if !c.IsZero() {
			return c, true, nil
		}
	}
	c, err := s.authenticate(ctx)
	return c, false, err
}

func (s *Session) authenticate(ctx context.Context) (models.GatewayCredentials, error) {
	identity := s.cfg.Identity
	if identity == "" {
		identity = "bridge-" + uuid.NewString()[:8]
	}
	body, err := json.Marshal(AuthRequest{Identity: identity, SecurityCode: s.cfg.SecurityCode})
	if err != nil {
		return models.GatewayCredentials{}, &ConnectionError{Kind: AuthFailed, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(s.cfg.URL, "/")+AuthPath, bytes.NewReader(body))
	if err != nil {
		return models.GatewayCredentials{}, &ConnectionError{Kind: AuthFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.GatewayCredentials{}, &ConnectionError{Kind: ChannelRefused, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return models.GatewayCredentials{}, &ConnectionError{Kind: AuthFailed, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return models.GatewayCredentials{}, &ConnectionError{Kind: ChannelRefused, Err: fmt.Errorf("auth status %d", resp.StatusCode)}
	}

	var out AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.GatewayCredentials{}, &ConnectionError{Kind: AuthFailed, Err: fmt.Errorf("decode auth response: %w", err)}
	}
	if out.PSK == "" {
		return models.GatewayCredentials{}, &ConnectionError{Kind: AuthFailed, Err: errors.New("empty psk")}
	}

	creds := models.GatewayCredentials{
		Host:      s.cfg.URL,
		Identity:  out.Identity,
		PSK:       out.PSK,
		UpdatedAt: s.now().UTC(),
	}
	if creds.Identity == "" {
		creds.Identity = identity
	}
	if s.creds != nil {
		if err := s.creds.Save(ctx, creds); err != nil {
			s.log.Warnw("gateway_credentials_save_failed", "err", err)
		}
	}
	s.log.Infow("gateway_authenticated", "identity", creds.Identity)
	return creds, nil
}

func (s *Session) open(ctx context.Context, creds models.GatewayCredentials) (*websocket.Conn, error) {
	wsURL, err := observeURL(s.cfg.URL)
	if err != nil {
		return nil, &ConnectionError{Kind: ChannelRefused, Err: err}
	}
	token, err := SignChannelToken(creds.Identity, creds.PSK, s.now())
	if err != nil {
		return nil, &ConnectionError{Kind: ChannelRefused, Err: err}
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := s.dialer.DialContext(ctx, wsURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, &ConnectionError{Kind: ChannelRefused, Err: err}
	}
	return conn, nil
}

func (s *Session) subscribe(ctx context.Context, conn *websocket.Conn) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = s.now().Add(s.cfg.ConnectTimeout)
	}
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(Frame{Type: FrameSubscribe}); err != nil {
		return &ConnectionError{Kind: ChannelRefused, Err: fmt.Errorf("subscribe: %w", err)}
	}

	_ = conn.SetReadDeadline(deadline)
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return &ConnectionError{Kind: ChannelRefused, Err: fmt.Errorf("await subscribed: %w", err)}
		}
		if f.Type == FrameSubscribed {
			break
		}
	}
	_ = conn.SetWriteDeadline(time.Time{})
	return nil
}

func (s *Session) readLoop(conn *websocket.Conn, done chan struct{}) {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	var readErr error
	for {
		var f Frame
		if readErr = conn.ReadJSON(&f); readErr != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		switch f.Type {
		case FrameDeviceUpdated:
			if f.Device == nil || f.Device.ID == "" {
				continue
			}
			select {
			case s.updates <- toUpdate(*f.Device, s.now()):
			case <-s.closed:
				readErr = errSessionClosed
			}
		case FrameAck:
			s.mu.Lock()
			ch, ok := s.pending[f.ID]
			s.mu.Unlock()
			if ok {
				select {
				case ch <- f:
				default:
				}
			}
		}
		if readErr != nil {
			break
		}
	}

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	_ = conn.Close()
	close(done)
	s.log.Infow("gateway_disconnected", "err", readErr)
}

// toUpdate converts a native device report into accessory coordinates.
func toUpdate(d DeviceState, at time.Time) models.DeviceUpdate {
	u := models.DeviceUpdate{DeviceID: d.ID, ReceivedAt: at}
	if d.Position != nil {
		u.PositionPercent = models.IntPtr(Invert(*d.Position))
	}
	if d.Battery != nil {
		u.BatteryPercent = models.IntPtr(*d.Battery)
	}
	return u
}

// Command sends a native position to deviceID and waits for the gateway's
// acknowledgement. It does not wait for the blind to finish moving.
func (s *Session) Command(ctx context.Context, deviceID string, nativePosition int) error {
	s.mu.Lock()
	conn, done := s.conn, s.done
	if conn == nil {
		s.mu.Unlock()
		return &CommandError{Kind: NotConnected, DeviceID: deviceID, Err: errNotConnected}
	}
	id := uuid.NewString()
	ack := make(chan Frame, 1)
	s.pending[id] = ack
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := conn.WriteJSON(Frame{Type: FrameCommand, ID: id, DeviceID: deviceID, Position: models.IntPtr(nativePosition)})
	s.writeMu.Unlock()
	if err != nil {
		return &CommandError{Kind: NotConnected, DeviceID: deviceID, Err: err}
	}

	select {
	case f := <-ack:
		if !f.OK {
			return &CommandError{Kind: GatewayRejected, DeviceID: deviceID, Err: errors.New(f.Error)}
		}
		return nil
	case <-done:
		return &CommandError{Kind: NotConnected, DeviceID: deviceID, Err: errNotConnected}
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &CommandError{Kind: CommandTimeout, DeviceID: deviceID, Err: ctx.Err()}
		}
		return ctx.Err()
	}
}

// Close drops the observe channel and stops delivering updates.
func (s *Session) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	return conn.Close()
}

func observeURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported gateway url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + ObservePath
	return u.String(), nil
}
