package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/avelar/songforge/internal/domain"
	"github.com/avelar/songforge/internal/service"
	"github.com/gin-gonic/gin"
)

// DiscoveryHandler handles track similarity endpoints.
type DiscoveryHandler struct {
	discovery *service.DiscoveryService
}

// NewDiscoveryHandler creates a new discovery handler.
func NewDiscoveryHandler(discovery *service.DiscoveryService) *DiscoveryHandler {
	return &DiscoveryHandler{
		discovery: discovery,
	}
}

// Search handles GET /api/v1/discovery/search.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DiscoveryHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'q' is required",
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	hits, err := h.discovery.Search(c.Request.Context(), query, c.Query("model"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Search failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tracks": hits,
		"count":  len(hits),
	})
}

// Similar handles GET /api/v1/discovery/similar/:task_id/:track_id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *DiscoveryHandler) Similar(c *gin.Context) {
	taskID := c.Param("task_id")
	trackID := c.Param("track_id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	hits, err := h.discovery.SimilarToTrack(c.Request.Context(), taskID, trackID, limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Track not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Similarity lookup failed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tracks": hits,
		"count":  len(hits),
	})
}
