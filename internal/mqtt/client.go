// Package mqtt mirrors blind snapshots to an MQTT broker and accepts target
// positions from it.
package mqtt

import (
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"blinds_bridge/internal/logger"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	qos            = 1
	connectTimeout = 10 * time.Second
	opTimeout      = 5 * time.Second
)

var errTimeout = errors.New("mqtt operation timed out")

// ClientAPI is the minimal surface the mirror needs.
// It enables unit testing without a live broker.
type ClientAPI interface {
	Subscribe(topic string, cb Handler) error
	Unsubscribe(topic string) error
	PublishWith(topic string, payload []byte, retain bool) error
	Close()
}

// Message is re-exported type for handlers
type Message = paho.Message

// Handler is handler signature
type Handler = paho.MessageHandler

// Client is a paho connection that restores its subscriptions after a reconnect.
type Client struct {
	cli paho.Client
	log *logger.Logger

	mu   sync.Mutex
	subs map[string]Handler
}

// brokerAddr maps mqtt:// and tls:// style URLs to the schemes paho understands.
func brokerAddr(u *url.URL) (string, error) {
	switch u.Scheme {
	case "mqtt", "tcp", "":
		return "tcp://" + u.Host, nil
	case "ssl", "tls", "mqtts":
		return "ssl://" + u.Host, nil
	case "ws", "wss":
		return u.Scheme + "://" + u.Host + u.Path, nil
	default:
		return "", fmt.Errorf("unsupported broker scheme %q", u.Scheme)
	}
}

// Dial connects to brokerURL. Credentials may be embedded in the URL.
func Dial(brokerURL, clientID string, log *logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	u, err := url.Parse(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("parse broker url: %w", err)
	}
	server, err := brokerAddr(u)
	if err != nil {
		return nil, err
	}

	c := &Client{log: log.Named("mqtt"), subs: make(map[string]Handler)}

	opts := paho.NewClientOptions()
	opts.AddBroker(server)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	// Set handlers may block for a full command round trip.
	opts.SetOrderMatters(false)
	if u.User != nil {
		pw, _ := u.User.Password()
		opts.SetUsername(u.User.Username())
		opts.SetPassword(pw)
	}
	opts.OnConnect = c.onConnect
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		c.log.Errorw("mqtt_connection_lost", "err", err)
	}

	c.cli = paho.NewClient(opts)
	if err := wait(c.cli.Connect(), connectTimeout); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", server, err)
	}
	return c, nil
}

func wait(t paho.Token, d time.Duration) error {
	if !t.WaitTimeout(d) {
		return errTimeout
	}
	return t.Error()
}

// onConnect resubscribes after paho reconnects with a clean session.
func (c *Client) onConnect(cli paho.Client) {
	c.log.Infow("mqtt_connected")
	c.mu.Lock()
	subs := make(map[string]Handler, len(c.subs))
	for topic, cb := range c.subs {
		subs[topic] = cb
	}
	c.mu.Unlock()

	for topic, cb := range subs {
		if err := wait(cli.Subscribe(topic, qos, cb), opTimeout); err != nil {
			c.log.Errorw("mqtt_resubscribe_failed", "topic", topic, "err", err)
		}
	}
}

func (c *Client) Subscribe(topic string, cb Handler) error {
	if err := wait(c.cli.Subscribe(topic, qos, cb), opTimeout); err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()
	c.log.Infow("mqtt_subscribed", "topic", topic)
	return nil
}

func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()
	return wait(c.cli.Unsubscribe(topic), opTimeout)
}

func (c *Client) PublishWith(topic string, payload []byte, retain bool) error {
	return wait(c.cli.Publish(topic, qos, retain, payload), opTimeout)
}

// Close disconnects, giving in-flight work a short grace period.
func (c *Client) Close() {
	c.cli.Disconnect(250)
}
