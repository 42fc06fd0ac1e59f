package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/govgrant/internal/eligibility"
	"github.com/dukerupert/govgrant/internal/household"
	"github.com/dukerupert/govgrant/internal/websocket"
)

type HouseholdHandler struct {
	svc    *household.Service
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewHouseholdHandler(svc *household.Service, hub *websocket.Hub, logger *slog.Logger) *HouseholdHandler {
	return &HouseholdHandler{svc: svc, hub: hub, logger: logger}
}

func (h *HouseholdHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// List returns the households matching the eligibility criteria in the
// query string.
func (h *HouseholdHandler) List(w http.ResponseWriter, r *http.Request) {
	c, err := eligibility.ParseCriteria(r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, err, "invalid criteria")
		return
	}

	households, err := h.svc.ListHouseholds(r.Context(), c)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to list households")
		return
	}
	writeJSON(w, http.StatusOK, households)
}

func (h *HouseholdHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HousingType string `json:"housing_type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	hh, err := h.svc.CreateHousehold(r.Context(), req.HousingType)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to create household")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityHousehold, websocket.ActionCreated, hh.ID, nil))
	writeJSON(w, http.StatusCreated, hh)
}

func (h *HouseholdHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	hh, err := h.svc.GetHousehold(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to get household")
		return
	}
	writeJSON(w, http.StatusOK, hh)
}

func (h *HouseholdHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	var patch household.Patch
	if err := decodeJSON(r, &patch); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	hh, err := h.svc.UpdateHousehold(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to update household")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityHousehold, websocket.ActionUpdated, hh.ID, map[string]any{
		"members_added": len(patch.Members),
	}))
	writeJSON(w, http.StatusOK, hh)
}

func (h *HouseholdHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	if err := h.svc.DeleteHousehold(r.Context(), id); err != nil {
		writeError(w, r, h.logger, err, "failed to delete household")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityHousehold, websocket.ActionDeleted, id, nil))
	w.WriteHeader(http.StatusNoContent)
}

func (h *HouseholdHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	var in household.MemberInput
	if err := decodeJSON(r, &in); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	m, err := h.svc.AddMember(r.Context(), id, in)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to add member")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityFamilyMember, websocket.ActionCreated, m.ID, map[string]any{"household": id}))
	writeJSON(w, http.StatusCreated, m)
}

func (h *HouseholdHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}

	hh, err := h.svc.RemoveMember(r.Context(), id, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to remove member")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityFamilyMember, websocket.ActionDeleted, 0, map[string]any{
		"household": id,
		"name":      req.Name,
	}))
	writeJSON(w, http.StatusOK, hh)
}
