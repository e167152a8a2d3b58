package handler

import (
	"net/http"
	"strconv"

	"github.com/avelar/songforge/internal/api/middleware"
	"github.com/avelar/songforge/internal/repository"
	"github.com/avelar/songforge/internal/service"
	"github.com/gin-gonic/gin"
)

// QuotaHandler handles quota and credit endpoints.
type QuotaHandler struct {
	quota    *service.QuotaService
	profiles *repository.ProfileRepository
}

// NewQuotaHandler creates a new quota handler.
func NewQuotaHandler(quota *service.QuotaService, profiles *repository.ProfileRepository) *QuotaHandler {
	return &QuotaHandler{
		quota:    quota,
		profiles: profiles,
	}
}

// Status handles GET /api/v1/quota.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *QuotaHandler) Status(c *gin.Context) {
	profile := middleware.GetProfile(c)

	status, err := h.quota.Status(c.Request.Context(), profile)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load quota",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// CreditHistory handles GET /api/v1/quota/credits.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *QuotaHandler) CreditHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	profile := middleware.GetProfile(c)
	entries, err := h.profiles.ListCreditEntries(c.Request.Context(), profile.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load credit history",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}
