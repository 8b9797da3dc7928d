package handler

import (
	"net/http"
	"strconv"

	"github.com/zenyourself/reflection-core/internal/middleware"
	"github.com/zenyourself/reflection-core/internal/service"
	"github.com/zenyourself/reflection-core/pkg/logger"
)

// JournalHandler handles journal endpoints.
type JournalHandler struct {
	service *service.JournalService
	logger  *logger.Logger
}

// NewJournalHandler creates a new journal handler.
func NewJournalHandler(svc *service.JournalService, log *logger.Logger) *JournalHandler {
	return &JournalHandler{
		service: svc,
		logger:  log,
	}
}

// List handles GET /api/v1/journal
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	resp, err := h.service.List(ctx, userID, limit)
	if err != nil {
		h.logger.Error("failed to list journal entries")
		writeError(w, http.StatusInternalServerError, "failed to list journal entries")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
