// Package status runs the local WebSocket server that streams sync state,
// conflict prompts, and notification events to connected clients.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/richardjkendall/todoapp/internal/notify"
	"github.com/richardjkendall/todoapp/internal/syncer"
	"github.com/richardjkendall/todoapp/internal/task"
)

// MessageType classifies a status stream message.
type MessageType string

const (
	// MessageTypeSyncStatus carries a sync state transition.
	MessageTypeSyncStatus MessageType = "sync_status"

	// MessageTypeConflict announces a merge that needs user input.
	MessageTypeConflict MessageType = "conflict"

	// MessageTypeNotification relays a fired notification event.
	MessageTypeNotification MessageType = "notification"
)

// Message is one frame on the status stream.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SyncStatusData mirrors the syncer's externally visible state.
type SyncStatusData struct {
	Status   string `json:"status"`
	Mode     string `json:"mode"`
	Online   bool   `json:"online"`
	LastSync string `json:"last_sync,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ConflictData summarizes a pending conflict for clients.
type ConflictData struct {
	Count  int      `json:"count"`
	IDs    []string `json:"ids"`
	Fields []string `json:"fields"`
}

// Server accepts WebSocket clients and fans status messages out to them.
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	// snapshot provides the current collection for the landing page.
	snapshot func() task.Collection

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration.
type Config struct {
	// Port to listen on. Port 0 picks a free port.
	Port int

	// Snapshot returns the current collection. Nil renders an empty list.
	Snapshot func() task.Collection

	// Logger for server activity.
	Logger *log.Logger
}

// NewServer creates a status server. Call Start to begin listening.
func NewServer(config *Config) *Server {
	if config == nil {
		config = &Config{}
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      fmt.Sprintf("127.0.0.1:%d", config.Port),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		snapshot:  config.Snapshot,
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Start begins the HTTP server and the broadcast loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Status server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	s.wg.Wait()
	return nil
}

// Broadcast queues a message for all connected clients.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

// BroadcastSyncStatus sends the syncer's current state to all clients.
func (s *Server) BroadcastSyncStatus(sy *syncer.Syncer) {
	data := SyncStatusData{
		Status: string(sy.Status()),
		Mode:   string(sy.Mode()),
		Online: sy.Online(),
	}
	if t := sy.LastSyncTime(); !t.IsZero() {
		data.LastSync = t.UTC().Format(time.RFC3339)
	}
	if msg := sy.LastError(); msg != "" {
		data.Error = msg
	}
	s.broadcastJSON(MessageTypeSyncStatus, data)
}

// BroadcastConflict announces a pending conflict.
func (s *Server) BroadcastConflict(info *syncer.ConflictInfo) {
	if info == nil {
		return
	}
	data := ConflictData{Count: len(info.Conflicts)}
	seen := map[string]bool{}
	for _, c := range info.Conflicts {
		data.IDs = append(data.IDs, c.ID)
		for _, f := range c.Fields {
			if !seen[f.Field] {
				seen[f.Field] = true
				data.Fields = append(data.Fields, f.Field)
			}
		}
	}
	s.broadcastJSON(MessageTypeConflict, data)
}

// BroadcastNotification relays a notification event.
func (s *Server) BroadcastNotification(event notify.Event) {
	s.broadcastJSON(MessageTypeNotification, event)
}

func (s *Server) broadcastJSON(typ MessageType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("Failed to marshal %s payload: %v", typ, err)
		return
	}
	s.Broadcast(Message{Type: typ, Timestamp: time.Now(), Data: data})
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}
			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Writes happen outside the lock so a slow client cannot
			// block new connections.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	go s.readLoop(conn)
}

// readLoop keeps the connection alive and detects client disconnects.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		_, _, err := conn.Read(s.ctx)
		if err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.clientsMu.RLock()
	clientCount := len(s.clients)
	s.clientsMu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"clients": clientCount,
	})
}

// handleRoot renders the landing page. Notification actions link here with
// /?filter=aged or /?filter=high-priority to open a pre-filtered view.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")

	var col task.Collection
	if s.snapshot != nil {
		col = s.snapshot()
	}
	records := filterRecords(col, filter, time.Now())

	w.Header().Set("Content-Type", "text/html")
	fmt.Fprintf(w, "<!DOCTYPE html>\n<html>\n<head><title>Todoapp Status</title></head>\n<body>\n")
	fmt.Fprintf(w, "<h1>Todoapp Status</h1>\n")
	fmt.Fprintf(w, "<p>WebSocket endpoint: <code>ws://%s/ws</code></p>\n", r.Host)
	fmt.Fprintf(w, "<p>Health check: <a href=\"/health\">/health</a></p>\n")
	if filter != "" {
		fmt.Fprintf(w, "<h2>Tasks (%s)</h2>\n", html.EscapeString(filter))
	} else {
		fmt.Fprintf(w, "<h2>Tasks</h2>\n")
	}
	fmt.Fprintf(w, "<ul>\n")
	for _, t := range records {
		marker := "&#9744;"
		if t.Completed {
			marker = "&#9745;"
		}
		fmt.Fprintf(w, "<li>%s %s (priority %d)</li>\n", marker, html.EscapeString(t.Text), t.Priority)
	}
	fmt.Fprintf(w, "</ul>\n</body>\n</html>\n")
}

// filterRecords applies the landing page filter names.
func filterRecords(col task.Collection, filter string, now time.Time) []*task.Task {
	all := col.Sorted()
	switch filter {
	case "aged":
		var out []*task.Task
		for _, t := range all {
			if !t.Completed && t.Age(now) >= notify.AgedOld {
				out = append(out, t)
			}
		}
		return out
	case "high-priority":
		var out []*task.Task
		for _, t := range all {
			if !t.Completed && t.Priority >= 4 {
				out = append(out, t)
			}
		}
		return out
	}
	return all
}

// Addr returns the server's listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
