package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/studygroup/internal/middleware"
	"github.com/studygroup/internal/model"
	"github.com/studygroup/internal/presence"
	"github.com/studygroup/internal/repository"
	"github.com/studygroup/internal/service"
)

type UserHandler struct {
	users    *service.UserService
	presence *presence.Tracker
}

func NewUserHandler(users *service.UserService, tracker *presence.Tracker) *UserHandler {
	return &UserHandler{users: users, presence: tracker}
}

// Me — GET /api/users/me: полный профиль текущего пользователя.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Get — GET /api/users/{userId}: публичный профиль (без настроек).
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "userId")

	u, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	writeJSON(w, http.StatusOK, u.ToPublic())
}

// List — GET /api/users?limit=100: каталог для выбора собеседника.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	if limit > 500 {
		limit = 500
	}
	users, err := h.users.ListAll(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load users")
		return
	}
	out := make([]model.UserPublic, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToPublic())
	}
	writeJSON(w, http.StatusOK, out)
}

type updateProfileRequest struct {
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
}

// UpdateProfile — PUT /api/users/me.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		writeError(w, http.StatusBadRequest, "displayName is required")
		return
	}
	if err := h.users.UpdateProfile(r.Context(), userID, req.DisplayName, req.PhotoURL); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

type updateSettingsRequest struct {
	PushEnabled bool `json:"pushNotificationsEnabled"`
	DarkMode    bool `json:"darkMode"`
}

// UpdateSettings — PUT /api/users/me/settings.
func (h *UserHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req updateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.users.UpdateSettings(r.Context(), userID, req.PushEnabled, req.DarkMode); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

type presenceRequest struct {
	// event: sign_in, sign_out, visible, hidden, unload
	Event string `json:"event"`
}

// Presence — POST /api/users/me/presence: события жизненного цикла клиента.
// unload приходит как beacon перед закрытием вкладки.
func (h *UserHandler) Presence(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req presenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var err error
	switch req.Event {
	case "sign_in":
		err = h.presence.SignIn(r.Context(), userID)
	case "sign_out":
		err = h.presence.SignOut(r.Context(), userID)
	case "visible":
		err = h.presence.Foreground(r.Context(), userID)
	case "hidden", "unload":
		err = h.presence.Background(r.Context(), userID)
	default:
		writeError(w, http.StatusBadRequest, "unknown presence event")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update presence")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
