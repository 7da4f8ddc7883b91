// Package remote exposes the instrument over a WebSocket endpoint.
// Clients send key events as JSON and receive key-state notifications
// for every accepted transition, letting a browser page or a second
// machine play and mirror the keyboard.
package remote

import (
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"keytone/internal/dispatch"
	"keytone/internal/log"
)

// wireEvent is the client→server message: {"event":"down","key":"q"}.
// Valid events are "down", "up" and "quit"; quit needs no key.
type wireEvent struct {
	Event string `json:"event"`
	Key   string `json:"key"`
}

// wireState is the server→client notification: {"key":"q","state":"down"}.
type wireState struct {
	Key   string `json:"key"`
	State string `json:"state"`
}

// Server accepts WebSocket clients on /events and bridges them to the
// dispatch event channel.
type Server struct {
	addr     string
	events   chan<- dispatch.Event
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	server   *http.Server
	listener net.Listener

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool
}

// New builds a server for the given listen address. Nothing listens
// until Start; the handler is usable on its own for tests.
func New(addr string, events chan<- dispatch.Event) *Server {
	s := &Server{
		addr:   addr,
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // local instrument, any origin may connect
			},
		},
		clients: make(map[*websocket.Conn]bool),
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/events", s.handleWebSocket)
	s.server = &http.Server{Handler: s.mux}
	return s
}

// Handler returns the HTTP handler serving the /events endpoint.
func (s *Server) Handler() http.Handler { return s.mux }

// Start begins listening. Returns immediately once the listener is
// bound; serving happens on a background goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	go func() {
		log.Infof("remote: listening on ws://%s/events", ln.Addr())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Errorf("remote: server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address, or the configured one before
// Start. Useful when listening on port 0.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("remote: upgrade error: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	total := len(s.clients)
	s.clientsMu.Unlock()
	log.Infof("remote: client connected (%s), total: %d", conn.RemoteAddr(), total)

	go s.readLoop(conn)
}

// readLoop translates inbound messages into dispatch events until the
// connection drops.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, conn)
		total := len(s.clients)
		s.clientsMu.Unlock()
		conn.Close()
		log.Infof("remote: client disconnected, total: %d", total)
	}()

	for {
		var msg wireEvent
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		ev, ok := parseEvent(msg)
		if !ok {
			log.Warnf("remote: ignoring malformed event %q", msg.Event)
			continue
		}
		s.deliver(ev)
	}
}

// parseEvent maps a wire message onto a dispatch event.
func parseEvent(msg wireEvent) (dispatch.Event, bool) {
	switch msg.Event {
	case "down":
		return dispatch.Event{Kind: dispatch.KeyDown, Key: msg.Key}, true
	case "up":
		return dispatch.Event{Kind: dispatch.KeyUp, Key: msg.Key}, true
	case "quit":
		return dispatch.Event{Kind: dispatch.Quit}, true
	default:
		return dispatch.Event{}, false
	}
}

func (s *Server) deliver(ev dispatch.Event) {
	select {
	case s.events <- ev:
	default:
		log.Warnf("remote: event queue full, dropping %s %q", ev.Kind, ev.Key)
	}
}

// Broadcast pushes a key transition to every connected client,
// pruning clients whose connection has failed. Called from the
// dispatcher goroutine, so writes are naturally serialized.
func (s *Server) Broadcast(key string, down bool) {
	state := "up"
	if down {
		state = "down"
	}
	msg := wireState{Key: key, State: state}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	for client := range s.clients {
		if err := client.WriteJSON(msg); err != nil {
			client.Close()
			delete(s.clients, client)
		}
	}
}

// Close drops all clients and shuts the server down. Safe to call
// whether or not Start ran.
func (s *Server) Close() error {
	s.clientsMu.Lock()
	for client := range s.clients {
		client.Close()
	}
	s.clients = make(map[*websocket.Conn]bool)
	s.clientsMu.Unlock()

	return s.server.Close()
}
