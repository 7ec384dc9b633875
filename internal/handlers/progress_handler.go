package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/AryanDesh/video-progress-tracker/internal/models"
	"github.com/AryanDesh/video-progress-tracker/internal/services"
)

// ProgressService is the interface that wraps methods for progress operations
type ProgressService interface {
	// GetProgress retrieves stored progress for a (video, user) pair
	//
	// "ctx" is the context for the request.
	// "videoID" is the ID of the video.
	// "userID" is the ID of the user.
	//
	// Returns the stored record, or the empty record for a fresh session, and an error if any.
	GetProgress(ctx context.Context, videoID, userID string) (*models.ProgressRecord, error)
	// SaveProgress validates, merges and persists an incoming progress snapshot
	//
	// "ctx" is the context for the request.
	// "videoID" is the ID of the video.
	// "userID" is the ID of the user.
	// "incoming" is the candidate snapshot to merge.
	//
	// Returns the persisted merged record with derived statistics, and an error if any.
	SaveProgress(ctx context.Context, videoID, userID string, incoming *models.SaveProgressRequest) (*models.ProgressRecord, *models.ProgressStats, error)
	// ResetProgress deletes the record for a (video, user) pair; idempotent
	//
	// "ctx" is the context for the request.
	// "videoID" is the ID of the video.
	// "userID" is the ID of the user.
	//
	// Returns an error if any.
	ResetProgress(ctx context.Context, videoID, userID string) error
	// ListProgress retrieves all records for a user with statistics, newest first
	//
	// "ctx" is the context for the request.
	// "userID" is the ID of the user.
	//
	// Returns the list of records and an error if any.
	ListProgress(ctx context.Context, userID string) ([]models.UserProgressItem, error)
}

// ProgressHandler handles HTTP requests for video progress operations
type ProgressHandler struct {
	BaseHandler
	service ProgressService
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(svc ProgressService, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		service:     svc,
		BaseHandler: BaseHandler{Logger: logger},
	}
}

// RegisterRoutes registers all progress handler routes
func (h *ProgressHandler) RegisterRoutes(r chi.Router, apiKeyMiddleware func(http.Handler) http.Handler) {
	r.Route("/videos/{videoId}/users/{userId}/progress", func(r chi.Router) {
		r.Get("/", h.GetProgress)
		r.Post("/", h.SaveProgress)
		r.Group(func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Delete("/", h.ResetProgress)
		})
	})
	r.Get("/users/{userId}/progress", h.ListProgress)
}

// GetProgress handles GET /videos/{videoId}/users/{userId}/progress
// @Summary Get video progress
// @Description Get stored progress for a video and user; a never-saved pair returns the empty shape
// @Tags progress
// @Accept json
// @Produce json
// @Param videoId path string true "Video ID"
// @Param userId path string true "User ID"
// @Success 200 {object} models.ProgressRecord "Stored or empty progress record"
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /videos/{videoId}/users/{userId}/progress [get]
func (h *ProgressHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	userID := chi.URLParam(r, "userId")

	record, err := h.service.GetProgress(r.Context(), videoID, userID)
	if err != nil {
		h.respondServiceError(w, err, "failed to get progress")
		return
	}

	// Identifiers are already in the URL
	record.VideoID = ""
	record.UserID = ""
	h.RespondJSON(w, http.StatusOK, record)
}

// SaveProgress handles POST /videos/{videoId}/users/{userId}/progress
// @Summary Save video progress
// @Description Merge an incoming progress snapshot into the stored record; rejects snapshots that would un-complete a checkpoint
// @Tags progress
// @Accept json
// @Produce json
// @Param videoId path string true "Video ID"
// @Param userId path string true "User ID"
// @Param snapshot body models.SaveProgressRequest true "Progress snapshot"
// @Success 200 {object} models.SaveProgressResponse "Merged record with statistics"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 409 {object} map[string]string "Regression rejected"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /videos/{videoId}/users/{userId}/progress [post]
func (h *ProgressHandler) SaveProgress(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	userID := chi.URLParam(r, "userId")

	var req models.SaveProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.RespondError(w, http.StatusBadRequest, string(services.CodeInvalidInput), "invalid JSON body")
		return
	}

	record, stats, err := h.service.SaveProgress(r.Context(), videoID, userID, &req)
	if err != nil {
		h.respondServiceError(w, err, "failed to save progress")
		return
	}

	record.VideoID = ""
	record.UserID = ""
	h.RespondJSON(w, http.StatusOK, &models.SaveProgressResponse{
		Success:  true,
		Progress: record,
		Stats:    stats,
	})
}

// ResetProgress handles DELETE /videos/{videoId}/users/{userId}/progress
// @Summary Reset video progress
// @Description Delete the stored progress record entirely; deleting a non-existent record succeeds
// @Tags progress
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param videoId path string true "Video ID"
// @Param userId path string true "User ID"
// @Success 204 "No Content"
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /videos/{videoId}/users/{userId}/progress [delete]
func (h *ProgressHandler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoId")
	userID := chi.URLParam(r, "userId")

	if err := h.service.ResetProgress(r.Context(), videoID, userID); err != nil {
		h.respondServiceError(w, err, "failed to reset progress")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListProgress handles GET /users/{userId}/progress
// @Summary List user progress
// @Description Get all progress records for a user with statistics, ordered by most-recently-updated first
// @Tags progress
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {array} models.UserProgressItem "Progress records with statistics"
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /users/{userId}/progress [get]
func (h *ProgressHandler) ListProgress(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	items, err := h.service.ListProgress(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err, "failed to list progress")
		return
	}

	h.RespondJSON(w, http.StatusOK, items)
}

// respondServiceError maps service error codes to HTTP statuses
func (h *ProgressHandler) respondServiceError(w http.ResponseWriter, err error, logMsg string) {
	var pe *services.ProgressError
	if !errors.As(err, &pe) {
		h.Logger.Error(logMsg, zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, string(services.CodeStorageUnavailable), "internal server error")
		return
	}

	switch pe.Code {
	case services.CodeInvalidInput:
		h.RespondError(w, http.StatusBadRequest, string(pe.Code), pe.Reason)
	case services.CodeRegressionRejected:
		h.RespondError(w, http.StatusConflict, string(pe.Code), pe.Reason)
	default:
		h.Logger.Error(logMsg, zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, string(pe.Code), pe.Reason)
	}
}
