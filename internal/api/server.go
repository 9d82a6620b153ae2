package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ideaengine/ideaengine/internal/database"
	"github.com/ideaengine/ideaengine/internal/logging"
	"github.com/ideaengine/ideaengine/internal/oracle"
	"github.com/ideaengine/ideaengine/internal/rebalance"
	"github.com/ideaengine/ideaengine/internal/retrieval"
	"github.com/ideaengine/ideaengine/pkg/config"
)

// Server is the REST API surface for the topic/stance engine.
type Server struct {
	router     *gin.Engine
	db         *database.Database
	config     *config.Config
	oracle     oracle.Oracle
	retrieval  *retrieval.Engine
	rebalance  *rebalance.Job
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer wires the gin router and the domain services (ingest,
// retrieval, rebalance) on top of db and cfg.
func NewServer(db *database.Database, o oracle.Oracle, cfg *config.Config) *Server {
	log := logging.GetLogger("api")
	log.Info("initializing REST API server")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(APIKeyAuthMiddleware(cfg.RestAPI.APIKey))

	if cfg.RestAPI.CORS {
		log.Debug("enabling CORS")
		router.Use(cors.New(cors.Config{
			AllowAllOrigins: true,
			AllowMethods:    []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:   []string{"Content-Length"},
			MaxAge:          12 * time.Hour,
		}))
	}

	server := &Server{
		router:    router,
		db:        db,
		config:    cfg,
		oracle:    o,
		retrieval: retrieval.New(db, o, &cfg.Topic),
		rebalance: rebalance.New(db, &cfg.Topic),
		log:       log,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.health)

		v1.POST("/ideas", MaxBodySizeMiddleware(MaxIdeaBodyBytes), s.createIdea)
		v1.GET("/neighbors", s.nearby)
		v1.GET("/supportive", s.supportive)
		v1.GET("/opposing", s.opposing)
		v1.GET("/nearby", s.nearby)
		v1.GET("/relations", s.relations)
		v1.GET("/topics", s.listTopics)
		v1.GET("/map", s.topicMap)
		v1.POST("/jobs/recluster", MaxBodySizeMiddleware(MaxIdeaBodyBytes), s.recluster)
	}
}

func (s *Server) health(c *gin.Context) {
	SuccessResponse(c, "ok", gin.H{"status": "ok"})
}

// Start runs the HTTP server until it errors, picking the next free
// port above the configured one when auto_port is enabled.
func (s *Server) Start() error {
	port := s.config.RestAPI.Port
	if s.config.RestAPI.AutoPort {
		available, err := findAvailablePort(port)
		if err != nil {
			return fmt.Errorf("failed to find available port: %w", err)
		}
		port = available
	}

	addr := fmt.Sprintf("%s:%d", s.config.RestAPI.Host, port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	s.log.Info("starting REST API server", "address", addr)
	return s.httpServer.ListenAndServe()
}

// StartWithContext runs the server until ctx is cancelled, then shuts
// down gracefully within shutdownTimeout.
func (s *Server) StartWithContext(ctx context.Context, shutdownTimeout time.Duration) error {
	port := s.config.RestAPI.Port
	if s.config.RestAPI.AutoPort {
		available, err := findAvailablePort(port)
		if err != nil {
			return fmt.Errorf("failed to find available port: %w", err)
		}
		port = available
	}

	addr := fmt.Sprintf("%s:%d", s.config.RestAPI.Host, port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("starting REST API server", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.log.Info("stopping REST API server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func findAvailablePort(startPort int) (int, error) {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range %d-%d", startPort, startPort+100)
}
