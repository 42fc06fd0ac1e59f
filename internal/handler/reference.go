package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/govgrant/internal/household"
	"github.com/dukerupert/govgrant/internal/model"
)

type ReferenceHandler struct {
	svc    *household.Service
	logger *slog.Logger
}

func NewReferenceHandler(svc *household.Service, logger *slog.Logger) *ReferenceHandler {
	return &ReferenceHandler{svc: svc, logger: logger}
}

func categoryParam(w http.ResponseWriter, r *http.Request) (model.Category, bool) {
	c, ok := model.ParseCategory(chi.URLParam(r, "category"))
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown reference category"})
	}
	return c, ok
}

func (h *ReferenceHandler) List(w http.ResponseWriter, r *http.Request) {
	c, ok := categoryParam(w, r)
	if !ok {
		return
	}
	refs, err := h.svc.ListReferences(r.Context(), c)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to list reference values")
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (h *ReferenceHandler) Create(w http.ResponseWriter, r *http.Request) {
	c, ok := categoryParam(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	ref, err := h.svc.CreateReference(r.Context(), c, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to create reference value")
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}
