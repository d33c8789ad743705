package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/swarm-autoscaler/api/handlers"
	"github.com/OldStager01/swarm-autoscaler/api/middleware"
	"github.com/OldStager01/swarm-autoscaler/pkg/config"
	"github.com/OldStager01/swarm-autoscaler/pkg/database"
	"github.com/OldStager01/swarm-autoscaler/pkg/database/queries"
)

// Dependencies are the parts of the running agent the server reports on.
type Dependencies struct {
	DB        *database.DB
	Agent     handlers.StatusProvider
	Collector handlers.HealthChecker
	Metrics   http.Handler
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.APIConfig
	deps       Dependencies
}

func NewServer(cfg config.APIConfig, mode string, deps Dependencies) *Server {
	if mode == "development" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router: gin.New(),
		config: cfg,
		deps:   deps,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestLogger())
}

func (s *Server) setupRoutes() {
	var history handlers.DeploymentHistory
	if s.deps.DB != nil {
		history = queries.NewDeploymentRepository(s.deps.DB.DB)
	}

	healthHandler := handlers.NewHealthHandler(s.deps.DB, s.deps.Collector, s.deps.Agent)
	statusHandler := handlers.NewStatusHandler(s.deps.Agent, history)

	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	s.router.GET("/status", statusHandler.Status)
	s.router.GET("/deployments", statusHandler.Deployments)

	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
}

func (s *Server) Start() error {
	idle := s.config.IdleTimeout
	if idle == 0 {
		idle = 60 * time.Second
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  idle,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
