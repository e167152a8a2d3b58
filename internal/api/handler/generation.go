package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/avelar/songforge/internal/api/middleware"
	"github.com/avelar/songforge/internal/domain"
	"github.com/avelar/songforge/internal/logger"
	"github.com/avelar/songforge/internal/provider/suno"
	"github.com/avelar/songforge/internal/service"
	"github.com/gin-gonic/gin"
)

// GenerationHandler handles generation job endpoints.
type GenerationHandler struct {
	generations *service.GenerationService
}

// NewGenerationHandler creates a new generation handler.
// Parameters:
//   - generations: generation service instance.
// Returns:
//   - *GenerationHandler: initialized handler.
func NewGenerationHandler(generations *service.GenerationService) *GenerationHandler {
	return &GenerationHandler{
		generations: generations,
	}
}

// jobResponse is the caller-facing view of a generation job.
type jobResponse struct {
	TaskID       string           `json:"task_id"`
	Status       string           `json:"status"`
	Model        string           `json:"model"`
	Prompt       string           `json:"prompt"`
	Style        string           `json:"style,omitempty"`
	Title        string           `json:"title,omitempty"`
	Instrumental bool             `json:"instrumental"`
	Tracks       domain.TrackList `json:"tracks"`
	ErrorMessage string           `json:"error_message,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func toJobResponse(job *domain.GenerationJob) jobResponse {
	tracks := job.Tracks
	if tracks == nil {
		tracks = domain.TrackList{}
	}
	return jobResponse{
		TaskID:       job.TaskID,
		Status:       service.PublicStatus(job.Status),
		Model:        job.Model,
		Prompt:       job.Prompt,
		Style:        job.Style,
		Title:        job.Title,
		Instrumental: job.Instrumental,
		Tracks:       tracks,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}

// Create handles POST /api/v1/generations.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GenerationHandler) Create(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	profile := middleware.GetProfile(c)
	job, err := h.generations.Submit(c.Request.Context(), profile, &req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrQuotaExceeded):
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Generation quota exhausted",
			})
		default:
			c.JSON(http.StatusBadGateway, gin.H{
				"error": "Generation submission failed",
			})
		}
		return
	}

	c.JSON(http.StatusOK, toJobResponse(job))
}

// Get handles GET /api/v1/generations/:task_id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GenerationHandler) Get(c *gin.Context) {
	taskID := c.Param("task_id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "task_id is required",
		})
		return
	}

	profile := middleware.GetProfile(c)
	job, err := h.generations.Status(c.Request.Context(), profile, taskID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Generation not found",
			})
		case errors.Is(err, domain.ErrForbidden):
			c.JSON(http.StatusForbidden, gin.H{
				"error": "Forbidden",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load generation",
			})
		}
		return
	}

	c.JSON(http.StatusOK, toJobResponse(job))
}

// List handles GET /api/v1/generations.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GenerationHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	profile := middleware.GetProfile(c)
	jobs, err := h.generations.List(c.Request.Context(), profile, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list generations",
		})
		return
	}

	items := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		items = append(items, toJobResponse(&jobs[i]))
	}

	c.JSON(http.StatusOK, gin.H{
		"generations": items,
		"count":       len(items),
	})
}

// Callback handles POST /api/v1/generations/callback, the provider webhook.
// The provider retries on non-200 responses and eventually gives up, so the
// endpoint acknowledges every structurally valid delivery; processing
// failures are logged and resolved by the polling path.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *GenerationHandler) Callback(c *gin.Context) {
	var payload suno.CallbackPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid callback payload",
		})
		return
	}

	if err := h.generations.HandleCallback(c.Request.Context(), &payload); err != nil {
		middleware.GetLogger(c).WithFields(logger.Fields{
			logger.FieldTaskID: payload.Data.TaskID,
		}).WithError(err).Error("Callback processing failed")
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "received",
	})
}
