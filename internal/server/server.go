package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/splitlab/splitlab/internal/experiment"
	"github.com/splitlab/splitlab/internal/logger"
	"github.com/splitlab/splitlab/internal/store"
)

// Server wraps the engine with a small JSON API. Assignment and tracking
// endpoints are public; experiment administration requires the boot token.
type Server struct {
	engine    *experiment.Service
	store     *store.SQLiteStore
	log       *logger.Logger
	port      int
	token     string
	router    *http.ServeMux
	startTime time.Time
}

func New(engine *experiment.Service, st *store.SQLiteStore, log *logger.Logger, port int) *Server {
	srv := &Server{
		engine:    engine,
		store:     st,
		log:       log,
		port:      port,
		token:     generateToken(),
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/b", s.handleBeacon)
	s.router.HandleFunc("/api/assignments", s.handleAssignments)

	// Admin endpoints (token protected)
	s.router.Handle("/api/experiments", s.authMiddleware(http.HandlerFunc(s.handleExperiments)))
	s.router.Handle("/api/experiments/", s.authMiddleware(http.HandlerFunc(s.handleExperimentDetail)))
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.log.Info("server listening", "addr", addr, "token", s.token)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a simple token if crypto/rand fails
		return "a1b2c3d4e5f6a7b8"
	}
	return hex.EncodeToString(bytes)
}
