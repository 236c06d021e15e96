package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/studygroup/internal/conversation"
	"github.com/studygroup/internal/middleware"
	"github.com/studygroup/internal/repository"
	"github.com/studygroup/internal/stream"
)

type MessageHandler struct {
	store   *stream.Store
	msgRepo *repository.MessageRepository
}

func NewMessageHandler(store *stream.Store, msgRepo *repository.MessageRepository) *MessageHandler {
	return &MessageHandler{store: store, msgRepo: msgRepo}
}

type sendMessageRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// SendMessage — POST /api/messages. Таймстемп и id назначает сервер;
// клиент получает сохранённую запись.
func (h *MessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := h.store.Append(r.Context(), userID, req.To, req.Text)
	switch {
	case errors.Is(err, stream.ErrEmptyBody):
		writeError(w, http.StatusBadRequest, "text is required")
		return
	case errors.Is(err, stream.ErrRecipientNotFound):
		writeError(w, http.StatusNotFound, "recipient not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to send message")
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// GetConversations — GET /api/conversations: сводка по каждому собеседнику,
// свежие беседы первыми.
func (h *MessageHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	msgs, err := h.store.History(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	writeJSON(w, http.StatusOK, conversation.Summarize(userID, msgs))
}

// GetConversationMessages — GET /api/conversations/{peerId}/messages.
func (h *MessageHandler) GetConversationMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID := chi.URLParam(r, "peerId")

	msgs, err := h.msgRepo.ListConversation(r.Context(), userID, peerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// MarkConversationSeen — POST /api/conversations/{peerId}/seen. Идемпотентно:
// повторный вызов отдаёт updated: 0.
func (h *MessageHandler) MarkConversationSeen(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	peerID := chi.URLParam(r, "peerId")

	n, err := h.store.MarkConversationSeen(r.Context(), userID, peerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mark seen")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// MarkSeen — POST /api/messages/{messageId}/seen.
func (h *MessageHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	messageID := chi.URLParam(r, "messageId")

	if err := h.store.MarkSeen(r.Context(), messageID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "message not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to mark seen")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"seen": true})
}
