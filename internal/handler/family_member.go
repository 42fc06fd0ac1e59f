package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/govgrant/internal/household"
	"github.com/dukerupert/govgrant/internal/websocket"
)

type FamilyMemberHandler struct {
	svc    *household.Service
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewFamilyMemberHandler(svc *household.Service, hub *websocket.Hub, logger *slog.Logger) *FamilyMemberHandler {
	return &FamilyMemberHandler{svc: svc, hub: hub, logger: logger}
}

func (h *FamilyMemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.ListMembers(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err, "failed to list family members")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *FamilyMemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	m, err := h.svc.GetMember(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to get family member")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// SetSpouse takes {"spouse": "<name>"} to link or {"spouse": null} to clear.
func (h *FamilyMemberHandler) SetSpouse(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}

	var req map[string]json.RawMessage
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid JSON")
		return
	}
	raw, ok := req["spouse"]
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "validation failed",
			Fields: map[string]string{"spouse": "field is required"},
		})
		return
	}
	var spouse *string
	if err := json.Unmarshal(raw, &spouse); err != nil {
		badRequest(w, "spouse must be a name or null")
		return
	}

	m, err := h.svc.SetSpouse(r.Context(), id, spouse)
	if err != nil {
		writeError(w, r, h.logger, err, "failed to set spouse")
		return
	}

	if h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage(websocket.EntityFamilyMember, websocket.ActionUpdated, m.ID, map[string]any{"spouse": m.Spouse}))
	}
	writeJSON(w, http.StatusOK, m)
}
