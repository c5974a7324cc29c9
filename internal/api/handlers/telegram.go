package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doctorauto/go-patio-sync/internal/model"
	"github.com/doctorauto/go-patio-sync/internal/service"
)

type TelegramHandler struct {
	Notifier *service.TelegramService
}

func NewTelegramHandler(notifier *service.TelegramService) *TelegramHandler {
	return &TelegramHandler{Notifier: notifier}
}

// Notify is wired to the shop-floor UI buttons (part problem / car ready).
func (h *TelegramHandler) Notify(c *gin.Context) {
	var n model.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload"})
		return
	}

	if n.Type == "" || n.Plate == "" || n.Assignee == "" || n.Time == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "required fields: type, plate, assignee, time"})
		return
	}
	if n.Type != model.NotifyIssue && n.Type != model.NotifyReady {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid type, use \"issue\" or \"ready\""})
		return
	}

	if err := h.Notifier.SendAlert(c.Request.Context(), &n); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to send notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "notification sent"})
}
