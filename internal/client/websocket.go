// ABOUTME: WebSocket client for the player stats stream
// ABOUTME: Connects to a stats server and delivers decoded stats messages
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/framepace-go/internal/server"
)

const handshakeTimeout = 5 * time.Second

// ErrNotConnected is returned when an operation needs an open connection.
var ErrNotConnected = errors.New("not connected")

// Config holds client configuration
type Config struct {
	ServerAddr string
	// Path defaults to server.StatsPath.
	Path string
}

// Client watches a player's stats stream
type Client struct {
	config Config
	conn   *websocket.Conn
	mu     sync.RWMutex

	// Stats receives every decoded stats message. Closed when the
	// connection ends.
	Stats chan server.StatsMessage

	// State
	connected bool
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewClient creates a new WebSocket client
func NewClient(config Config) *Client {
	if config.Path == "" {
		config.Path = server.StatsPath
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		config: config,
		Stats:  make(chan server.StatsMessage, 16),
		ctx:    ctx,
		cancel: cancel,
	}
}

// URL returns the stats endpoint the client dials.
func (c *Client) URL() string {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	return u.String()
}

// Connect dials the stats endpoint and starts reading messages
func (c *Client) Connect() error {
	log.Infof("Connecting to %s", c.URL())

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(c.ctx, c.URL(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readMessages()

	return nil
}

// readMessages reads and decodes incoming messages
func (c *Client) readMessages() {
	defer close(c.Stats)
	defer c.Close()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("Read error: %v", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			log.Debugf("Ignoring non-text message")
			continue
		}

		msg, err := decodeStats(data)
		if err != nil {
			log.Warnf("Failed to parse stats message: %v", err)
			continue
		}

		select {
		case c.Stats <- msg:
		case <-c.ctx.Done():
			return
		}
	}
}

func decodeStats(data []byte) (server.StatsMessage, error) {
	var msg server.StatsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, err
	}
	if msg.Type != server.StatsMessageType {
		return msg, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	return msg, nil
}

// Close closes the connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		c.connected = false
		c.cancel()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.conn.Close()
		log.Debugf("Connection closed")
	}
}

// IsConnected returns connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}
