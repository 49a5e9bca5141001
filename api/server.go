package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wires the collaboration engine together and registers its
// routes. The broadcaster and the session registry reference each other,
// so construction is two-phase: broadcaster first, then the registry,
// then the back-reference.
type Server struct {
	manager     *SessionManager
	broadcaster *Broadcaster
	gateway     *Gateway
	rooms       *RoomHandler
}

// ServerOptions carries the engine and transport settings.
type ServerOptions struct {
	MaxParticipants int
	GraceTimeout    time.Duration
	Gateway         GatewayOptions
}

// NewServer creates a fully wired API server instance.
func NewServer(opts ServerOptions) *Server {
	broadcaster := NewBroadcaster()
	manager := NewSessionManager(opts.MaxParticipants, opts.GraceTimeout, broadcaster)
	broadcaster.SetSessionManager(manager)

	return &Server{
		manager:     manager,
		broadcaster: broadcaster,
		gateway:     NewGateway(manager, broadcaster, opts.Gateway),
		rooms:       NewRoomHandler(manager),
	}
}

// SessionManager exposes the registry for callers that embed the server.
func (s *Server) SessionManager() *SessionManager {
	return s.manager
}

// RegisterHandlers registers all routes with the router.
func (s *Server) RegisterHandlers(r *gin.Engine) {
	r.GET("/status", s.rooms.GetStatus)
	r.GET("/sessions", s.rooms.GetSessions)
	r.POST("/sessions", s.rooms.PostSessions)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", s.gateway.HandleWS)
}
