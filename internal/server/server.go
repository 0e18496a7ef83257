package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/rpsbot/internal/session"
)

// ErrAlreadyConnected is returned when a player authenticates on a second connection.
var ErrAlreadyConnected = errors.New("player already connected")

// Server represents the WebSocket server
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	players     map[string]*Connection
	logger      *log.Logger
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
	httpServer  *http.Server
	service     *Service
}

// NewServer creates a new WebSocket server
func NewServer(addr string, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Clients are bots and chat bridges, not browsers
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		players:     make(map[string]*Connection),
		logger:      logger.WithPrefix("server"),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetService sets the service that handles player requests
func (s *Server) SetService(service *Service) {
	s.mu.Lock()
	s.service = service
	s.mu.Unlock()
}

// Handler returns the HTTP routes served by this server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start listens until Stop is called
func (s *Server) Start() error {
	s.logger.Info("Starting WebSocket server", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes every connection and shuts the listener down
func (s *Server) Stop(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close() // Ignore close errors during shutdown
	}
	s.mu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.ctx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s, s.logger)
	s.register(client)
	client.Start()

	// Connection cleanup is handled by the connection itself
	go func() {
		<-client.ctx.Done()
		s.unregister(client)
	}()
}

func (s *Server) register(conn *Connection) {
	s.mu.Lock()
	s.connections[conn] = true
	total := len(s.connections)
	s.mu.Unlock()
	s.logger.Info("Client connected", "total", total)
}

func (s *Server) unregister(conn *Connection) {
	s.mu.Lock()
	if _, ok := s.connections[conn]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.connections, conn)
	player := conn.Participant()
	if player.ID != "" && s.players[player.ID] == conn {
		delete(s.players, player.ID)
	} else {
		player = session.Participant{}
	}
	total := len(s.connections)
	s.mu.Unlock()

	_ = conn.Close() // Ignore close errors during unregistration
	if player.ID != "" && s.service != nil {
		s.service.Disconnected(player)
	}
	s.logger.Info("Client disconnected", "player", player.ID, "total", total)
}

// bind associates an authenticated player with conn.
func (s *Server) bind(conn *Connection, p session.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.players[p.ID]; ok && existing != conn {
		return ErrAlreadyConnected
	}
	s.players[p.ID] = conn
	conn.SetParticipant(p)
	return nil
}

// SendToPlayer sends a message to a specific player
func (s *Server) SendToPlayer(playerID string, msg *Message) error {
	s.mu.RLock()
	conn, ok := s.players[playerID]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrPlayerNotConnected, playerID)
	}
	return conn.SendMessage(msg)
}

// Lookup returns the connected participant with playerID
func (s *Server) Lookup(playerID string) (session.Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.players[playerID]
	if !ok {
		return session.Participant{}, false
	}
	return conn.Participant(), true
}

// GetConnectedPlayers returns a list of connected player IDs
func (s *Server) GetConnectedPlayers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]string, 0, len(s.players))
	for id := range s.players {
		players = append(players, id)
	}
	return players
}
