// Package bridge pushes receiver lifecycle and detection events to local
// UI clients over WebSocket, taking the place of the status display the
// engine otherwise has no knowledge of.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/proximity-blue/beacon"
	"github.com/user/proximity-blue/logger"
)

// clientWriteTimeout bounds how long one stalled client can delay its
// own frame. Other clients are never blocked behind it.
const clientWriteTimeout = 5 * time.Second

// Event is the JSON message pushed to connected clients. BeaconCode is a
// decimal string so 64-bit codes survive JavaScript number parsing.
type Event struct {
	Type       string    `json:"type"` // "start", "startFailed", "stop", "detect"
	Timestamp  time.Time `json:"timestamp"`
	ErrorCode  int       `json:"error_code,omitempty"`
	BeaconCode string    `json:"beacon_code,omitempty"`
	Rssi       int       `json:"rssi,omitempty"`
}

// Server accepts WebSocket clients on /events and broadcasts every engine
// event to all of them.
type Server struct {
	addr       string
	httpServer *http.Server
	upgrader   websocket.Upgrader

	clientsMux sync.Mutex
	clients    map[*bridgeClient]bool
}

// bridgeClient is one connected UI client. writeMu serializes writes so
// concurrent broadcasts never interleave frames on the same connection.
type bridgeClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewServer creates a server that will listen on addr
func NewServer(addr string) *Server {
	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Local UI only; the bridge binds to loopback
				return true
			},
		},
		clients: make(map[*bridgeClient]bool),
	}
}

// Handler returns the HTTP handler serving the /events endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

// Start begins serving in the background
func (s *Server) Start() error {
	s.httpServer = &http.Server{Addr: s.addr, Handler: s.Handler()}
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Bridge", "Server stopped (err=%v)", err)
		}
	}()
	logger.Info("Bridge", "Serving events on ws://%s/events", s.addr)
	return nil
}

// Stop closes all client connections and shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	s.clientsMux.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clients = make(map[*bridgeClient]bool)
	s.clientsMux.Unlock()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Listener returns an adapter that forwards engine events to this bridge
func (s *Server) Listener() beacon.Listener {
	return &engineListener{server: s}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Bridge", "Upgrade failed (err=%v)", err)
		return
	}

	client := &bridgeClient{conn: conn}
	s.clientsMux.Lock()
	s.clients[client] = true
	count := len(s.clients)
	s.clientsMux.Unlock()
	logger.Debug("Bridge", "Client connected (%d total)", count)

	// Read loop only to observe the close; clients don't send anything
	// the bridge acts on
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.dropClient(client)
				return
			}
		}
	}()
}

func (s *Server) dropClient(c *bridgeClient) {
	s.clientsMux.Lock()
	defer s.clientsMux.Unlock()
	if s.clients[c] {
		delete(s.clients, c)
		c.conn.Close()
		logger.Debug("Bridge", "Client disconnected (%d total)", len(s.clients))
	}
}

func (s *Server) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Bridge", "Marshal event failed (err=%v)", err)
		return
	}
	logger.DebugJSON("Bridge", "Pushing event", ev.asStruct())

	s.clientsMux.Lock()
	targets := make([]*bridgeClient, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.clientsMux.Unlock()

	// Writes happen outside the registry lock; a stalled client delays
	// only its own frame, bounded by the write deadline.
	for _, c := range targets {
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.writeMu.Unlock()
		if err != nil {
			s.dropClient(c)
		}
	}
}

// engineListener adapts beacon.Listener onto the bridge
type engineListener struct {
	server *Server
}

func (l *engineListener) Start() {
	l.server.broadcast(Event{Type: "start", Timestamp: time.Now()})
}

func (l *engineListener) StartFailed(errorCode int) {
	l.server.broadcast(Event{Type: "startFailed", Timestamp: time.Now(), ErrorCode: errorCode})
}

func (l *engineListener) Stop() {
	l.server.broadcast(Event{Type: "stop", Timestamp: time.Now()})
}

func (l *engineListener) Detect(event beacon.DetectionEvent) {
	l.server.broadcast(Event{
		Type:       "detect",
		Timestamp:  event.ObservedAt,
		BeaconCode: strconv.FormatUint(event.PeerBeaconCode, 10),
		Rssi:       event.Rssi,
	})
}

// String renders the event for logs
func (e *Event) String() string {
	return fmt.Sprintf("%s beacon=%s rssi=%d", e.Type, e.BeaconCode, e.Rssi)
}

// asStruct renders the event as a protobuf Struct for debug dumps. Struct
// values are JavaScript-safe by construction, so the dump shows exactly
// what a web client can represent.
func (e *Event) asStruct() *structpb.Struct {
	fields := map[string]*structpb.Value{
		"type":      structpb.NewStringValue(e.Type),
		"timestamp": structpb.NewStringValue(e.Timestamp.Format(time.RFC3339Nano)),
	}
	if e.ErrorCode != 0 {
		fields["error_code"] = structpb.NewNumberValue(float64(e.ErrorCode))
	}
	if e.BeaconCode != "" {
		fields["beacon_code"] = structpb.NewStringValue(e.BeaconCode)
		fields["rssi"] = structpb.NewNumberValue(float64(e.Rssi))
	}
	return &structpb.Struct{Fields: fields}
}
