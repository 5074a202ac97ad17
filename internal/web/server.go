// internal/web/server.go
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/config"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/metrics"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/monitoring"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/notifications"
)

// DomainMonitor is the part of monitoring.Monitor the API exposes.
type DomainMonitor interface {
	Start()
	Stop()
	Running() bool
	CheckDomainHealth(ctx context.Context, domain string) monitoring.HealthCheckResult
	GetActiveAlerts(ctx context.Context, domain string) ([]database.Alert, error)
	ResolveAlert(ctx context.Context, id string) error
	DetectConfigurationDrift(ctx context.Context, domain string) (bool, error)
}

type Server struct {
	config     *config.Config
	store      database.Store
	monitor    DomainMonitor
	dispatcher *notifications.Dispatcher
	metrics    *metrics.Collector
	hub        *Hub
	router     *gin.Engine
	server     *http.Server
}

// NewServer builds the router. metrics may be nil; dispatcher and hub are
// replaced with empty ones when nil.
func NewServer(cfg *config.Config, store database.Store, monitor DomainMonitor, dispatcher *notifications.Dispatcher, collector *metrics.Collector, hub *Hub) *Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	if dispatcher == nil {
		dispatcher = notifications.NewDispatcher(nil)
	}
	if hub == nil {
		hub = NewHub(collector)
	}

	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	server := &Server{
		config:     cfg,
		store:      store,
		monitor:    monitor,
		dispatcher: dispatcher,
		metrics:    collector,
		hub:        hub,
		router:     router,
	}

	server.setupRoutes()
	return server
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Server.Port,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	logrus.WithField("port", s.config.Server.Port).Info("Starting web server")

	if s.metrics != nil {
		go s.updateMetricsRoutine(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.Close()
	return s.server.Shutdown(shutdownCtx)
}

func (s *Server) setupRoutes() {
	admin := requireAdmin(s.config.Server.AdminToken)

	api := s.router.Group("/api")
	{
		api.GET("/health", s.healthCheck)
		api.GET("/version", s.getBuildInfo)
		api.GET("/stats", s.getStats)

		api.GET("/domains", s.getDomains)
		api.POST("/domains/:domain/check", s.checkDomain)
		api.GET("/domains/:domain/drift", s.getDrift)

		api.GET("/alerts", s.getAlerts)
		api.POST("/alerts/:id/resolve", s.resolveAlert)

		api.GET("/monitor", s.getMonitor)
		api.POST("/monitor/start", admin, s.startMonitor)
		api.POST("/monitor/stop", admin, s.stopMonitor)

		api.GET("/notifications", s.getNotificationSinks)
		api.POST("/notifications/push", admin, s.pushNotification)
	}

	s.router.GET("/ws", s.handleWebSocket)

	if s.config.Prometheus.Enabled {
		s.router.GET(s.config.Prometheus.MetricsPath, gin.WrapH(promhttp.Handler()))
	}
}

func (s *Server) updateMetricsRoutine(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.metrics.UpdateSystemMetrics(ctx, s.store); err != nil {
				logrus.WithError(err).Error("Failed to update system metrics")
			}
		}
	}
}

// requireAdmin guards privileged routes with a static bearer token. With no
// token configured the routes are disabled.
func requireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin token not configured"})
			return
		}
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logrus.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
			"client":   c.ClientIP(),
		}).Debug("HTTP request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
