package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/soundbay/backend/internal/search"
)

// Search queries tracks or users
// GET /api/v1/search?q=&type=tracks|users
func (h *Handlers) Search(c *gin.Context) {
	page := pageFromQuery(c)
	results, err := h.search.Search(c.Request.Context(), c.Query("q"), search.Kind(c.DefaultQuery("type", string(search.KindTracks))), page)
	if err != nil {
		respondError(c, err, "search failed")
		return
	}
	c.JSON(http.StatusOK, results)
}
