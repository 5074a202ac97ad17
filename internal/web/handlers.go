// internal/web/handlers.go
package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
)

type DriftResponse struct {
	Domain  string `json:"domain"`
	Drifted bool   `json:"drifted"`
}

type MonitorResponse struct {
	Running  bool   `json:"running"`
	Interval string `json:"interval"`
	Workers  int    `json:"workers"`
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   Version,
	})
}

func (s *Server) getStats(c *gin.Context) {
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to get stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get stats"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            stats,
		"monitor_running": s.monitor.Running(),
	})
}

func (s *Server) getDomains(c *gin.Context) {
	domains, err := s.store.ListDomains(c.Request.Context())
	if err != nil {
		logrus.WithError(err).Error("Failed to get domains")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get domains"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  domains,
		"count": len(domains),
	})
}

// checkDomain runs an on-demand probe. The result is returned, not stored.
func (s *Server) checkDomain(c *gin.Context) {
	result := s.monitor.CheckDomainHealth(c.Request.Context(), c.Param("domain"))
	s.hub.HealthChecked(result)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) getDrift(c *gin.Context) {
	domain := c.Param("domain")
	drifted, err := s.monitor.DetectConfigurationDrift(c.Request.Context(), domain)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Domain not found"})
			return
		}
		logrus.WithError(err).WithField("domain", domain).Error("Drift detection failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": DriftResponse{Domain: domain, Drifted: drifted}})
}

func (s *Server) getAlerts(c *gin.Context) {
	alerts, err := s.monitor.GetActiveAlerts(c.Request.Context(), c.Query("domain"))
	if err != nil {
		logrus.WithError(err).Error("Failed to get alerts")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  alerts,
		"count": len(alerts),
	})
}

func (s *Server) resolveAlert(c *gin.Context) {
	id := c.Param("id")
	if err := s.monitor.ResolveAlert(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
			return
		}
		logrus.WithError(err).WithField("alert_id", id).Error("Failed to resolve alert")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Alert resolved", "id": id})
}

func (s *Server) monitorState() MonitorResponse {
	return MonitorResponse{
		Running:  s.monitor.Running(),
		Interval: s.config.Monitoring.Interval.String(),
		Workers:  s.config.Monitoring.Workers,
	}
}

func (s *Server) getMonitor(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.monitorState()})
}

func (s *Server) startMonitor(c *gin.Context) {
	s.monitor.Start()
	c.JSON(http.StatusOK, gin.H{"data": s.monitorState()})
}

func (s *Server) stopMonitor(c *gin.Context) {
	s.monitor.Stop()
	c.JSON(http.StatusOK, gin.H{"data": s.monitorState()})
}
