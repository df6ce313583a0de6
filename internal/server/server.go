// ABOUTME: Stats server for the frame pacing player
// ABOUTME: Streams playback statistics to WebSocket clients and answers health checks
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/framepace-go/internal/discovery"
	"github.com/Resonate-Protocol/framepace-go/internal/version"
)

const (
	// StatsPath is the WebSocket endpoint streaming stats.
	StatsPath = "/stats"

	// HealthPath answers liveness probes.
	HealthPath = "/healthz"

	// StatsMessageType tags stats messages.
	StatsMessageType = "player/stats"

	clientQueueSize = 16
	writeDeadline   = 10 * time.Second
	pingInterval    = 30 * time.Second
)

// Config holds server configuration
type Config struct {
	Port       int
	Name       string
	Interval   time.Duration
	EnableMDNS bool
	// SessionID identifies this playback run. Generated when empty.
	SessionID string
}

// PlaybackStats is the payload of a stats message.
type PlaybackStats struct {
	PositionUs  int64   `json:"position_us"`
	Received    int64   `json:"received"`
	Rendered    int64   `json:"rendered"`
	Dropped     int64   `json:"dropped"`
	Skipped     int64   `json:"skipped"`
	Ignored     int64   `json:"ignored"`
	Pending     int     `json:"pending"`
	HeadEarlyUs int64   `json:"head_early_us"`
	LeadUs      int64   `json:"lead_us"`
	FirstFrames int64   `json:"first_frames"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Playing     bool    `json:"playing"`
	Joining     bool    `json:"joining"`
	Ready       bool    `json:"ready"`
	Ended       bool    `json:"ended"`
	Speed       float64 `json:"speed"`
}

// StatsMessage is sent to every client each interval.
type StatsMessage struct {
	Type        string        `json:"type"`
	SessionID   string        `json:"session_id"`
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	TimestampUs int64         `json:"timestamp_us"`
	Payload     PlaybackStats `json:"payload"`
}

// StatsSource returns the current playback statistics.
type StatsSource func() PlaybackStats

// Server streams playback stats
type Server struct {
	config    Config
	sessionID string
	stats     StatsSource
	upgrader  websocket.Upgrader
	mux       *http.ServeMux

	clients   map[string]*client
	clientsMu sync.RWMutex
	// closed refuses new clients once shutdown began.
	closed bool

	wg sync.WaitGroup
}

type client struct {
	id       string
	addr     string
	conn     *websocket.Conn
	sendChan chan StatsMessage
}

// New creates a stats server
func New(config Config, stats StatsSource) *Server {
	if config.Interval <= 0 {
		config.Interval = 500 * time.Millisecond
	}
	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	s := &Server{
		config:    config,
		sessionID: sessionID,
		stats:     stats,
		mux:       http.NewServeMux(),
		upgrader: websocket.Upgrader{
			// Stats are read-only and meant for local dashboards.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
	s.mux.HandleFunc(StatsPath, s.handleWebSocket)
	s.mux.HandleFunc(HealthPath, s.handleHealth)
	return s
}

// SessionID returns the playback session ID.
func (s *Server) SessionID() string {
	return s.sessionID
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{Handler: s.mux}

	var mdnsManager *discovery.Manager
	if s.config.EnableMDNS {
		mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        listener.Addr().(*net.TCPAddr).Port,
			SessionID:   s.sessionID,
		})
		if err := mdnsManager.Advertise(); err != nil {
			log.Warnf("Failed to start mDNS advertisement: %v", err)
		}
	}

	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	log.Infof("Stats server listening on %s (session %s)", listener.Addr(), s.sessionID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.broadcastLoop(ctx)
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		log.Infof("Stats server shutting down...")
	case err := <-errChan:
		log.Errorf("HTTP server error: %v", err)
		serverErr = err
	}

	if mdnsManager != nil {
		mdnsManager.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warnf("HTTP server shutdown error: %v", err)
	}
	s.closeClients()
	s.wg.Wait()

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Broadcast sends the current stats to every client.
func (s *Server) Broadcast() {
	msg := s.snapshot()

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for _, c := range s.clients {
		select {
		case c.sendChan <- msg:
		default:
			log.Debugf("Client %s is slow, skipping stats update", c.addr)
		}
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Broadcast()
		}
	}
}

func (s *Server) snapshot() StatsMessage {
	return StatsMessage{
		Type:        StatsMessageType,
		SessionID:   s.sessionID,
		Name:        s.config.Name,
		Version:     version.Version,
		TimestampUs: time.Now().UnixMicro(),
		Payload:     s.stats(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":     "ok",
		"session_id": s.sessionID,
	})
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &client{
		id:       uuid.New().String(),
		addr:     r.RemoteAddr,
		conn:     conn,
		sendChan: make(chan StatsMessage, clientQueueSize),
	}
	// Send the current state right away
	c.sendChan <- s.snapshot()

	s.clientsMu.Lock()
	if s.closed {
		s.clientsMu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(time.Second))
		return
	}
	s.clients[c.id] = c
	s.wg.Add(1)
	s.clientsMu.Unlock()
	log.Infof("Stats client connected: %s", c.addr)

	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()

	defer s.removeClient(c)

	// Reads only detect disconnects
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debugf("WebSocket error from %s: %v", c.addr, err)
			}
			return
		}
	}
}

// clientWriter sends messages to the client
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Debugf("Error writing stats to %s: %v", c.addr, err)
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	if _, ok := s.clients[c.id]; !ok {
		return
	}
	delete(s.clients, c.id)
	close(c.sendChan)
	log.Infof("Stats client disconnected: %s", c.addr)
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	s.closed = true
	for id, c := range s.clients {
		delete(s.clients, id)
		close(c.sendChan)
	}
}
