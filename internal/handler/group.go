package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/studygroup/internal/group"
	"github.com/studygroup/internal/middleware"
	"github.com/studygroup/internal/model"
	"github.com/studygroup/internal/repository"
)

type GroupHandler struct {
	svc *group.Service
}

func NewGroupHandler(svc *group.Service) *GroupHandler {
	return &GroupHandler{svc: svc}
}

type createGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image"`
	MaxMembers  int    `json:"maxMembers"`
}

// Create — POST /api/groups.
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	g, err := h.svc.Create(r.Context(), userID, req.Name, req.Description, req.ImageURL, req.MaxMembers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create group")
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// Get — GET /api/groups/{groupId}.
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupId")

	g, err := h.svc.Get(r.Context(), groupID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// ListMine — GET /api/groups: группы текущего пользователя.
func (h *GroupHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	groups, err := h.svc.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load groups")
		return
	}
	if groups == nil {
		groups = []model.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

// Join — POST /api/groups/{groupId}/join.
func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "groupId")

	g, err := h.svc.Join(r.Context(), groupID, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "group not found")
		return
	case errors.Is(err, group.ErrAlreadyMember):
		writeError(w, http.StatusConflict, "already a member")
		return
	case errors.Is(err, group.ErrGroupFull):
		writeError(w, http.StatusConflict, "group is full")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to join group")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Leave — POST /api/groups/{groupId}/leave.
func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "groupId")

	err := h.svc.Leave(r.Context(), groupID, userID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "group not found")
		return
	case errors.Is(err, group.ErrNotMember):
		writeError(w, http.StatusConflict, "not a member")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to leave group")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"left": true})
}

type updateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"image"`
}

// Update — PUT /api/groups/{groupId}.
func (h *GroupHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "groupId")

	var req updateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	err := h.svc.UpdateInfo(r.Context(), groupID, userID, req.Name, req.Description, req.ImageURL)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "group not found")
		return
	case errors.Is(err, group.ErrNotMember):
		writeError(w, http.StatusForbidden, "not a member")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to update group")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

type meetingRequest struct {
	Details string `json:"details"`
}

// NotifyMeeting — POST /api/groups/{groupId}/meetings: напоминание участникам.
func (h *GroupHandler) NotifyMeeting(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	groupID := chi.URLParam(r, "groupId")

	var req meetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Details) == "" {
		writeError(w, http.StatusBadRequest, "details is required")
		return
	}
	err := h.svc.NotifyMeeting(r.Context(), groupID, userID, req.Details)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "group not found")
		return
	case errors.Is(err, group.ErrNotMember):
		writeError(w, http.StatusForbidden, "not a member")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to send reminder")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"sent": true})
}
