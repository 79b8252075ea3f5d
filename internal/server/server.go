package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/devoverflow/backend/internal/config"
	"github.com/emilythestrangee/devoverflow/backend/internal/handlers"
	"github.com/emilythestrangee/devoverflow/backend/internal/ledger"
	"github.com/emilythestrangee/devoverflow/backend/internal/metrics"
	"github.com/emilythestrangee/devoverflow/backend/internal/middleware"
)

const serviceName = "devoverflow"

type healthReporter interface {
	Health(ctx context.Context) map[string]string
}

type Server struct {
	cfg      *config.Config
	svc      *ledger.Service
	handler  *handlers.Handler
	limiter  middleware.Limiter
	registry *prometheus.Registry
	metrics  *metrics.HTTPMetrics
}

// NewServer creates and configures a new server. limiter may be nil, which
// disables vote rate limiting. HTTP metrics are registered on registry and
// served from /metrics together with everything else registered there.
func NewServer(cfg *config.Config, svc *ledger.Service, limiter middleware.Limiter, registry *prometheus.Registry) *http.Server {
	newServer := &Server{
		cfg:      cfg,
		svc:      svc,
		handler:  handlers.NewHandler(svc),
		limiter:  limiter,
		registry: registry,
		metrics:  metrics.NewHTTPMetrics(registry),
	}

	router := newServer.RegisterRoutes()

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	zap.L().Info("🚀 Server configured", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
	return server
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	if s.cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS configuration
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(otelgin.Middleware(serviceName))
	r.Use(middleware.Logger())
	r.Use(s.metrics.Middleware())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})))

	auth := middleware.Auth(s.cfg.JWTSecret)

	api := r.Group("/api")
	{
		// Public reads
		api.GET("/users/:id", s.handler.User.GetUserProfile)
		api.GET("/users/:id/interactions", s.handler.User.GetUserInteractions)
		api.GET("/questions/:id", s.handler.Question.GetQuestion)
		api.GET("/questions/:id/answers", s.handler.Answer.GetAnswers)
		api.GET("/votes/status", middleware.OptionalAuth(s.cfg.JWTSecret), s.handler.Vote.VoteStatus)

		// Protected routes (authentication required)
		protected := api.Group("")
		protected.Use(auth)
		{
			protected.POST("/votes",
				middleware.RateLimit(s.limiter, "vote", s.cfg.VoteRateLimit, s.cfg.VoteRateWindow),
				s.handler.Vote.SubmitVote,
			)

			protected.POST("/questions", s.handler.Question.CreateQuestion)
			protected.DELETE("/questions/:id", s.handler.Question.DeleteQuestion)
			protected.POST("/questions/:id/answers", s.handler.Answer.CreateAnswer)

			protected.DELETE("/answers/:id", s.handler.Answer.DeleteAnswer)
		}
	}

	return r
}

// health reports the store and, when the limiter can report on itself, the
// rate limiter backend. Only the store decides the status code; votes are
// still accepted while the limiter is down.
func (s *Server) health(c *gin.Context) {
	ctx := c.Request.Context()
	stats := s.svc.Health(ctx)
	if r, ok := s.limiter.(healthReporter); ok {
		for k, v := range r.Health(ctx) {
			stats["redis_"+k] = v
		}
	}

	if stats["status"] != "up" {
		c.JSON(http.StatusServiceUnavailable, stats)
		return
	}
	c.JSON(http.StatusOK, stats)
}
