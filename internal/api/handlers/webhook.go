package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/doctorauto/go-patio-sync/internal/model"
	"github.com/doctorauto/go-patio-sync/internal/service"
)

// Header Trello signs its deliveries with.
const trelloSignatureHeader = "X-Trello-Webhook"

// WebhookHandler hosts both ingestors. Idempotency lives in the
// reconciler (it consults the mirror store before acting), so redelivered
// events simply turn into no-ops here.
type WebhookHandler struct {
	Sync         *service.SyncService
	TrelloSecret string
}

func NewWebhookHandler(sync *service.SyncService, trelloSecret string) *WebhookHandler {
	return &WebhookHandler{Sync: sync, TrelloSecret: trelloSecret}
}

// TrelloHead answers the webhook registration handshake.
func (h *WebhookHandler) TrelloHead(c *gin.Context) {
	c.Status(http.StatusOK)
}

// TrelloEvent ingests one board event. Only card moves into a mapped list
// are propagated; everything else is acknowledged and dropped.
func (h *WebhookHandler) TrelloEvent(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable body"})
		return
	}

	// Signature check is best-effort: Trello only signs webhooks created
	// with a callback URL, so a missing header is accepted.
	if sig := c.GetHeader(trelloSignatureHeader); sig != "" {
		if !validTrelloSignature(raw, sig, h.TrelloSecret) {
			log.Warn("[webhook] trello signature mismatch")
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid signature"})
			return
		}
	}

	var payload model.TrelloWebhook
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Action.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload: expected object with \"action\""})
		return
	}

	ev, ok := normalizeCardMove(&payload)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "event ignored"})
		return
	}

	if err := h.Sync.HandleCardMove(c.Request.Context(), ev); err != nil {
		log.WithFields(log.Fields{"card": ev.CardID, "error": err}).Error("[webhook] trello event failed")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// normalizeCardMove turns an updateCard payload into a CardMoveEvent.
// Trello reports the list change either as listBefore/listAfter or as a
// bare list, depending on the event source.
func normalizeCardMove(payload *model.TrelloWebhook) (*service.CardMoveEvent, bool) {
	if payload.Action.Type != "updateCard" {
		return nil, false
	}
	data := payload.Action.Data
	if data.Card == nil {
		return nil, false
	}

	after := data.ListAfter
	if after == nil {
		after = data.List
	}
	if after == nil || after.Name == "" {
		return nil, false
	}
	if data.ListBefore != nil && data.ListBefore.ID == after.ID {
		return nil, false
	}

	ev := &service.CardMoveEvent{
		CardID:        data.Card.ID,
		CardName:      data.Card.Name,
		ListAfterName: after.Name,
	}
	if data.ListBefore != nil {
		ev.ListBeforeName = data.ListBefore.Name
	}
	return ev, true
}

func validTrelloSignature(body []byte, signature, secret string) bool {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// KommoEvent ingests one lead-change delivery. Each lead entry runs
// through the reconciler independently.
func (h *WebhookHandler) KommoEvent(c *gin.Context) {
	var payload model.KommoWebhook
	if err := c.ShouldBindJSON(&payload); err != nil || len(payload.Leads) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid payload: expected object with \"leads\" array"})
		return
	}

	created := 0
	for i := range payload.Leads {
		wasCreated, err := h.Sync.HandleLeadEvent(c.Request.Context(), &payload.Leads[i])
		if err != nil {
			log.WithFields(log.Fields{"lead": payload.Leads[i].ID, "error": err}).Error("[webhook] kommo event failed")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		if wasCreated {
			created++
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "cards_created": created})
}
