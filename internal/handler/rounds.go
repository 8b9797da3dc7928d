// Package handler provides HTTP handlers for the API.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zenyourself/reflection-core/internal/middleware"
	"github.com/zenyourself/reflection-core/internal/model"
	"github.com/zenyourself/reflection-core/internal/service"
	"github.com/zenyourself/reflection-core/pkg/logger"
)

// RoundHandler handles reflection round endpoints.
type RoundHandler struct {
	service *service.RoundService
	logger  *logger.Logger
}

// NewRoundHandler creates a new round handler.
func NewRoundHandler(svc *service.RoundService, log *logger.Logger) *RoundHandler {
	return &RoundHandler{
		service: svc,
		logger:  log,
	}
}

// Start handles POST /api/v1/rounds
func (h *RoundHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.StartRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateThoughtText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidateLocale(req.Locale); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	round, err := h.service.Start(ctx, userID, &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

// List handles GET /api/v1/rounds
func (h *RoundHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	writeJSON(w, http.StatusOK, h.service.List(userID))
}

// Get handles GET /api/v1/rounds/{id}
func (h *RoundHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	roundID := chi.URLParam(r, "id")

	if err := middleware.ValidateRoundID(roundID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	round, err := h.service.Get(userID, roundID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// Answer handles POST /api/v1/rounds/{id}/answer
func (h *RoundHandler) Answer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	roundID := chi.URLParam(r, "id")

	if err := middleware.ValidateRoundID(roundID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateThoughtText(req.Text); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	round, err := h.service.Submit(ctx, userID, roundID, req.Text)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// UndoAnswer handles POST /api/v1/rounds/{id}/answer/undo
func (h *RoundHandler) UndoAnswer(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	roundID := chi.URLParam(r, "id")

	if err := middleware.ValidateRoundID(roundID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	round, err := h.service.UndoAnswer(userID, roundID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// Closure handles POST /api/v1/rounds/{id}/closure
func (h *RoundHandler) Closure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	roundID := chi.URLParam(r, "id")

	if err := middleware.ValidateRoundID(roundID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	round, err := h.service.Closure(ctx, userID, roundID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// Mood handles POST /api/v1/rounds/{id}/mood
func (h *RoundHandler) Mood(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	roundID := chi.URLParam(r, "id")

	if err := middleware.ValidateRoundID(roundID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.MoodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	round, err := h.service.Mood(userID, roundID, &req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// Save handles POST /api/v1/rounds/{id}/save
func (h *RoundHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	roundID := chi.URLParam(r, "id")

	if err := middleware.ValidateRoundID(roundID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Save(ctx, userID, roundID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/v1/rounds/{id}
func (h *RoundHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	roundID := chi.URLParam(r, "id")

	if err := middleware.ValidateRoundID(roundID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.Delete(userID, roundID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service errors to responses. Advisory precondition
// errors come back as short messages, not server faults.
func (h *RoundHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRoundNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEmptyInput),
		errors.Is(err, service.ErrInvalidMoodScore):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrRoundBusy),
		errors.Is(err, service.ErrRoundFrozen),
		errors.Is(err, service.ErrMissingAnswer),
		errors.Is(err, service.ErrMissingMood),
		errors.Is(err, service.ErrMoodNotAvailable),
		errors.Is(err, service.ErrMoodAlreadySet),
		errors.Is(err, service.ErrNothingToUndo):
		writeError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("round operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "something went wrong")
	}
}
