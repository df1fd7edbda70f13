// Package server exposes the bot over HTTP: a JSON API for scheduling,
// registration, course search and credential import, plus a websocket feed
// that streams booking progress events to connected UIs.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hspbot/hspbot/auth"
	"github.com/hspbot/hspbot/booking/events"
	"github.com/hspbot/hspbot/booking/schedule"
	"github.com/hspbot/hspbot/config"
	"github.com/hspbot/hspbot/errors"
	"github.com/hspbot/hspbot/hsp"
	"github.com/hspbot/hspbot/logger"
)

// Server is the HTTP and websocket surface of the bot
type Server struct {
	cfg       *config.Config
	auth      *auth.Manager
	scheduler *schedule.Scheduler
	api       *hsp.Client
	events    *events.Broadcaster
	log       *zap.SugaredLogger

	httpServer *http.Server
	upgrader   websocket.Upgrader

	mu      sync.RWMutex
	clients map[*Client]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer wires the API surface to its collaborators
func NewServer(cfg *config.Config, authManager *auth.Manager, scheduler *schedule.Scheduler, api *hsp.Client, broadcaster *events.Broadcaster, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = logger.Logger
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:       cfg,
		auth:      authManager,
		scheduler: scheduler,
		api:       api,
		events:    broadcaster,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The UI is served from arbitrary local origins during development
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*Client]struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// routes builds the request mux
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/auth/import", s.handleAuthImport)
	mux.HandleFunc("GET /api/courses", s.handleCourses)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/register/polling", s.handleStartPolling)
	mux.HandleFunc("POST /api/register/stop", s.handleStopPolling)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("POST /api/schedule", s.handleScheduleBooking)
	mux.HandleFunc("GET /api/schedule", s.handleListJobs)
	mux.HandleFunc("GET /api/schedule/preview", s.handleSchedulePreview)
	mux.HandleFunc("DELETE /api/schedule/{id}", s.handleCancelJob)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	return mux
}

// Start serves until the listener fails or Shutdown is called
func (s *Server) Start() error {
	s.log.Infow("Server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "http server failed")
	}
	return nil
}

// Shutdown drains websocket clients and stops the HTTP listener
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	s.mu.Lock()
	for client := range s.clients {
		s.events.Unsubscribe(client)
		client.close()
		delete(s.clients, client)
	}
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()
	s.log.Infow("Server stopped")
	return err
}

// handleWebSocket upgrades the connection and registers the client as an
// event listener
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("WebSocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	client := &Client{
		server:  s,
		conn:    conn,
		sendMsg: make(chan interface{}, clientSendBuffer),
		id:      "ws_" + uuid.NewString(),
	}

	s.mu.Lock()
	s.clients[client] = struct{}{}
	clientCount := len(s.clients)
	s.mu.Unlock()
	s.events.Subscribe(client)

	s.log.Infow("WebSocket client connected", "client_id", client.id, "clients", clientCount)

	s.wg.Add(2)
	go client.writePump()
	go client.readPump()
}

// removeClient unregisters a disconnected client; delivery stops before
// this returns
func (s *Server) removeClient(client *Client) {
	s.events.Unsubscribe(client)

	s.mu.Lock()
	delete(s.clients, client)
	clientCount := len(s.clients)
	s.mu.Unlock()

	client.close()
	s.log.Infow("WebSocket client disconnected", "client_id", client.id, "clients", clientCount)
}

// ClientCount returns the number of connected websocket clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
