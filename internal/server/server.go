// Package server exposes the relay over HTTP.
//
// Any GET carrying a WebSocket upgrade is accepted on any path; the "from"
// query parameter picks the role. Plain GET / answers with a liveness
// string, /health and /ws/stats report JSON.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rickgao/rota-relay/internal/connection"
	"github.com/rickgao/rota-relay/internal/router"
	"github.com/rickgao/rota-relay/internal/version"
)

// RootMessage is the body of a plain GET /.
const RootMessage = "rota-relay: servidor WebSocket ativo"

// Config holds HTTP server settings.
type Config struct {
	Addr            string
	Conn            connection.ConnConfig
	ShutdownTimeout time.Duration
	Debug           bool // gin request logging
}

// Pinger reports database health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDatabase adds a database check to /health.
func WithDatabase(p Pinger) Option {
	return func(s *Server) {
		s.db = p
	}
}

// WithComponent adds a named stats section to /health.
func WithComponent(name string, stats func() any) Option {
	return func(s *Server) {
		s.components[name] = stats
	}
}

// Server bundles the gin engine and the relay dependencies.
type Server struct {
	cfg        Config
	registry   *connection.Registry
	router     router.Router
	db         Pinger
	components map[string]func() any
	logger     *slog.Logger

	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[string]*connection.Conn
}

// New constructs a server with routes and middleware.
func New(cfg Config, registry *connection.Registry, rt router.Router, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		registry:   registry,
		router:     rt,
		components: make(map[string]func() any),
		logger:     slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Dashboards are served from anywhere.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[string]*connection.Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.ShutdownTimeout <= 0 {
		s.cfg.ShutdownTimeout = 10 * time.Second
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	if cfg.Debug {
		engine.Use(gin.Logger())
	}
	engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		MaxAge:          12 * time.Hour,
	}))

	s.engine = engine
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down the listener and
// closes every open WebSocket.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		// Hijacked connections are not tracked by http.Server.
		s.CloseConnections()
		return err
	}
}

// CloseConnections closes every open WebSocket.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	conns := make([]*connection.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	if len(conns) > 0 {
		s.logger.Info("closed websocket connections", "count", len(conns))
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ws/stats", s.handleStats)
	s.engine.NoRoute(s.handleNoRoute)
}

func (s *Server) handleRoot(c *gin.Context) {
	if websocket.IsWebSocketUpgrade(c.Request) {
		s.handleUpgrade(c)
		return
	}
	c.String(http.StatusOK, RootMessage)
}

func (s *Server) handleNoRoute(c *gin.Context) {
	if c.Request.Method == http.MethodGet && websocket.IsWebSocketUpgrade(c.Request) {
		s.handleUpgrade(c)
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

// handleUpgrade owns one WebSocket for its whole life: it registers the
// connection with the router, feeds every frame to it, and unregisters on
// the first read error.
func (s *Server) handleUpgrade(c *gin.Context) {
	role := connection.ResolveRole(c.Request.RequestURI)

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "remote_addr", c.Request.RemoteAddr, "error", err)
		return
	}

	conn := connection.NewConn(ws, role, c.Request.RemoteAddr, s.cfg.Conn, s.logger)
	conn.Start()

	if !s.router.Connect(conn) {
		s.logger.Warn("router stopped, rejecting connection", "remote_addr", conn.RemoteAddr())
		conn.Close()
		return
	}
	s.track(conn)

	s.logger.Info("websocket connected",
		"conn_id", conn.ID(),
		"role", string(role),
		"remote_addr", conn.RemoteAddr(),
	)

	err = conn.ReadLoop(func(data []byte) {
		s.router.Submit(conn, data)
	})

	s.router.Disconnect(conn)
	s.untrack(conn)
	conn.Close()

	attrs := []any{
		"conn_id", conn.ID(),
		"role", string(role),
		"duration", time.Since(conn.ConnectedAt()).Round(time.Millisecond),
	}
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		s.logger.Warn("websocket closed", append(attrs, "error", err)...)
		return
	}
	s.logger.Info("websocket closed", attrs...)
}

func (s *Server) track(c *connection.Conn) {
	s.mu.Lock()
	s.conns[c.ID()] = c
	s.mu.Unlock()
}

func (s *Server) untrack(c *connection.Conn) {
	s.mu.Lock()
	delete(s.conns, c.ID())
	s.mu.Unlock()
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK

	components := gin.H{}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if err := s.db.Ping(ctx); err != nil {
			status = "unhealthy"
			code = http.StatusServiceUnavailable
			components["database"] = gin.H{"status": "disconnected", "error": err.Error()}
		} else {
			components["database"] = "connected"
		}
	}
	for name, stats := range s.components {
		components[name] = stats()
	}

	c.JSON(code, gin.H{
		"status":      status,
		"version":     version.Get(),
		"connections": s.registry.Stats(),
		"router":      s.router.Stats(),
		"components":  components,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	stats := s.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"roles": gin.H{
			string(connection.RoleESP):     stats.ESP,
			string(connection.RoleSite):    stats.Site,
			string(connection.RoleUnknown): stats.Unknown,
		},
		"total_clients": stats.Total,
	})
}
