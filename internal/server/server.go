// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hdb-assistant/internal/common/config"
	"hdb-assistant/internal/common/logger"
)

// Pinger reports backing-store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	cfg    *config.Config
	router *gin.Engine
	srv    *http.Server
	log    logger.Logger
}

func New(cfg *config.Config, handler *QueryHandler, postgres, redis Pinger, log logger.Logger) *Server {
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", healthHandler(cfg, postgres, redis))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/query", handler.Query)
		apiV1.POST("/predict", handler.Predict)
	}

	return &Server{
		cfg:    cfg,
		router: router,
		log:    log,
	}
}

func healthHandler(cfg *config.Config, postgres, redis Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := gin.H{}

		if postgres != nil {
			if err := postgres.Ping(ctx); err != nil {
				checks["postgres"] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				checks["postgres"] = "ok"
			}
		}
		if redis != nil {
			if err := redis.Ping(ctx); err != nil {
				// The cache is optional; a dead cache degrades but does not
				// make the service unhealthy.
				checks["redis"] = err.Error()
			} else {
				checks["redis"] = "ok"
			}
		}

		body := gin.H{
			"status":  "healthy",
			"service": cfg.App.Name,
			"version": cfg.App.Version,
			"checks":  checks,
		}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		c.JSON(status, body)
	}
}

// Router exposes the engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	s.log.Info("http server listening", map[string]interface{}{
		"addr": s.cfg.Server.Addr(),
	})
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
