package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/harun/twinself/internal/observability"
	"github.com/harun/twinself/pkg/commandqueue"
	"github.com/harun/twinself/pkg/lifecycle"
	"github.com/rs/zerolog"
)

// Config holds admin server configuration
type Config struct {
	Host         string
	Port         int
	SharedSecret string // empty disables authentication
	EnableCORS   bool
	Service      *lifecycle.Service
	Queue        *commandqueue.CommandQueue
	Logger       zerolog.Logger
}

// Server exposes version, snapshot and rebuild operations over HTTP.
type Server struct {
	host         string
	port         int
	sharedSecret string
	engine       *gin.Engine
	httpServer   *http.Server
	listener     net.Listener
	upgrader     websocket.Upgrader
	service      *lifecycle.Service
	queue        *commandqueue.CommandQueue
	hub          *eventHub
	logger       zerolog.Logger
	startTime    time.Time
	mu           sync.Mutex
}

// NewServer builds the router. Nothing listens until Start.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("lifecycle service is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(cfg.Logger))

	if cfg.EnableCORS {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
		corsConfig.AllowWebSockets = true
		engine.Use(cors.New(corsConfig))
	}

	s := &Server{
		host:         cfg.Host,
		port:         cfg.Port,
		sharedSecret: cfg.SharedSecret,
		engine:       engine,
		service:      cfg.Service,
		queue:        cfg.Queue,
		hub:          newEventHub(cfg.Logger),
		logger:       cfg.Logger,
		startTime:    time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // the shared secret gates access
			},
		},
	}
	s.queue.On(commandqueue.EventAll, s.hub.publish)
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	observability.EnsureRegistered()
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(observability.MetricsHandler()))

	api := s.engine.Group("/api")
	api.Use(bearerAuth(s.sharedSecret))

	api.GET("/status", s.handleStatus)
	api.GET("/plan", s.handlePlan)

	versions := api.Group("/versions")
	{
		versions.GET("", s.handleListVersions)
		versions.GET("/active", s.handleActiveVersion)
		versions.GET("/diff", s.handleDiff)
		versions.GET("/:id", s.handleGetVersion)
	}

	api.POST("/rebuild", s.handleRebuild)
	api.POST("/rollback/:id", s.handleRollback)

	jobs := api.Group("/jobs")
	{
		jobs.GET("", s.handleListJobs)
		jobs.GET("/:id", s.handleGetJob)
	}

	snapshots := api.Group("/snapshots")
	{
		snapshots.GET("", s.handleListSnapshots)
		snapshots.DELETE("/:id", s.handleDeleteSnapshot)
	}

	suggestions := api.Group("/suggestions")
	{
		suggestions.GET("", s.handleListSuggestions)
		suggestions.POST("", s.handleAddSuggestion)
		suggestions.POST("/process", s.handleProcessSuggestions)
	}

	api.GET("/prompts/active", s.handleActivePrompt)
	api.GET("/events", s.handleEvents)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Addr is the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return net.JoinHostPort(s.host, fmt.Sprint(s.port))
}

// Start binds the listener and serves in the background. Bind errors are returned.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return fmt.Errorf("admin server already started")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.host, fmt.Sprint(s.port)))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Bool("auth", s.sharedSecret != "").Msg("Starting admin API")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Admin API server error")
		}
	}()
	return nil
}

// Stop closes event streams and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.queue.Off(commandqueue.EventAll)
	s.hub.closeAll()

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Info().Msg("Shutting down admin API")
	return srv.Shutdown(ctx)
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Admin request")
	}
}
