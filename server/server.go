package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scipioni/mouse-controller/bluetooth"
	"github.com/scipioni/mouse-controller/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Server exposes the daemon's status surface: a JSON API plus the /ws
// event stream fed by the hub.
type Server struct {
	manager *bluetooth.Manager
	wsHub   *utils.WebSocketHub
	router  *http.ServeMux
	httpSrv *http.Server
}

func NewServer(manager *bluetooth.Manager, wsHub *utils.WebSocketHub) *Server {
	s := &Server{
		manager: manager,
		wsHub:   wsHub,
		router:  http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/api/status", s.handleStatus)
	s.router.HandleFunc("/api/adapter", s.handleAdapter)
	s.router.HandleFunc("/api/adapter/ensure", s.handleAdapterEnsure)
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Start launches the HTTP listener in the background.
func (s *Server) Start(addr string) {
	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	go func() {
		log.Printf("SERVER: listening on %s", addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("SERVER: %v", err)
		}
	}()
}

// Shutdown drains the HTTP server with a bounded deadline.
func (s *Server) Shutdown() {
	if s.httpSrv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		log.Printf("SERVER: shutdown: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("SERVER: encode response: %v", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleAdapter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	state, err := s.manager.Prober().Probe()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleAdapterEnsure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if err := s.manager.Prober().EnsureReady(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	state, err := s.manager.Prober().Probe()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("SERVER: websocket upgrade failed: %v", err)
		return
	}
	s.wsHub.AddClient(conn)

	// Drain the client; its reads are only pings and close frames.
	go func() {
		defer s.wsHub.RemoveClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
