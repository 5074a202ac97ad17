// internal/web/notification_handlers.go - manual notification push
package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/MORADOK/VaccineHomeBot-sub001/internal/database"
	"github.com/MORADOK/VaccineHomeBot-sub001/internal/notifications"
)

type PushRequest struct {
	Sink      string          `json:"sink" binding:"required"`
	Recipient string          `json:"recipient" binding:"required"`
	Text      string          `json:"text"`
	Template  json.RawMessage `json:"template"`
	// AlertID renders a stored alert as the message text.
	AlertID string `json:"alert_id"`
}

// GET /api/notifications - list configured sinks
func (s *Server) getNotificationSinks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.dispatcher.Names()})
}

// POST /api/notifications/push - send one message through a sink
func (s *Server) pushNotification(c *gin.Context) {
	var req PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Text == "" && len(req.Template) == 0 && req.AlertID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text, template or alert_id is required"})
		return
	}

	msg := notifications.Message{Text: req.Text, Template: req.Template}
	if req.AlertID != "" {
		alert, err := s.store.GetAlert(c.Request.Context(), req.AlertID)
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		msg.Text = notifications.AlertMessage(*alert).Text
	}
	err := s.dispatcher.Send(c.Request.Context(), req.Sink, req.Recipient, msg)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Notification sent"})
	case errors.Is(err, notifications.ErrUnknownSink):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, notifications.ErrThrottled):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		logrus.WithError(err).WithField("sink", req.Sink).Error("Notification push failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
