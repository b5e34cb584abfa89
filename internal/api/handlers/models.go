package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kirogate/kirogate/internal/catalog"
)

// Models serves the model catalog in both dialect shapes. Listing triggers a
// fire-and-forget cache refresh when the snapshot is stale; the response
// always comes from the current snapshot.
type Models struct {
	cache *catalog.Cache
}

func NewModels(cache *catalog.Cache) *Models {
	return &Models{cache: cache}
}

// List handles GET /v1/models. Anthropic SDKs identify themselves with the
// anthropic-version header and get the messages-API list shape; everyone
// else gets the OpenAI shape.
func (h *Models) List(c *gin.Context) {
	if c.GetHeader("anthropic-version") != "" {
		h.listClaude(c)
		return
	}
	h.cache.RefreshAsync()
	snap := h.cache.Current()

	created := snap.RefreshedAt.Unix()
	if snap.RefreshedAt.IsZero() {
		created = time.Now().Unix()
	}
	data := make([]gin.H, 0, len(snap.Models))
	for _, m := range snap.Models {
		data = append(data, gin.H{
			"id":       m.ID,
			"object":   "model",
			"created":  created,
			"owned_by": m.OwnedBy,
		})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

func (h *Models) listClaude(c *gin.Context) {
	h.cache.RefreshAsync()
	snap := h.cache.Current()

	data := make([]gin.H, 0, len(snap.Models))
	for _, m := range snap.Models {
		data = append(data, gin.H{
			"id":           m.ID,
			"type":         "model",
			"display_name": m.DisplayName,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"data":     data,
		"has_more": false,
	})
}
