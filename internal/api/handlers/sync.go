package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/doctorauto/go-patio-sync/internal/repository"
	"github.com/doctorauto/go-patio-sync/internal/service"
)

// SyncHandler exposes the manual operations behind admin auth: the full
// board resync sweep and the link listing the operator dashboard reads.
type SyncHandler struct {
	Trello *service.TrelloService
	Repo   *repository.PostgresRepo
}

func NewSyncHandler(trello *service.TrelloService, repo *repository.PostgresRepo) *SyncHandler {
	return &SyncHandler{Trello: trello, Repo: repo}
}

func (h *SyncHandler) SyncBoard(c *gin.Context) {
	synced, failed, err := h.Trello.SyncBoard(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "synced": synced, "failed": failed})
}

func (h *SyncHandler) ListLinks(c *gin.Context) {
	links, err := h.Repo.ListLinks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"links": links})
}
