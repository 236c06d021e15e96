package ws

import (
	"github.com/studygroup/internal/conversation"
	"github.com/studygroup/internal/model"
)

type EventType string

const (
	// Клиент -> сервер
	EventSendMessage EventType = "send_message"
	EventMarkSeen    EventType = "mark_seen"
	EventTyping      EventType = "typing"

	// Сервер -> клиент
	EventMessage            EventType = "message"
	EventConversationUpdate EventType = "conversation_update"
	EventNotification       EventType = "notification"
	EventPresence           EventType = "presence"
	EventError              EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type EventType `json:"type"`

	// For send_message and typing
	To   string `json:"to,omitempty"`
	Text string `json:"text,omitempty"`

	// For mark_seen: either a whole conversation or a single message
	PeerID    string `json:"peerId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// TypingPayload приходит собеседнику, пока пользователь печатает.
type TypingPayload struct {
	UserID string `json:"userId"`
}

// PresencePayload is broadcast to group peers on status transitions.
type PresencePayload struct {
	UserID string               `json:"userId"`
	Status model.PresenceStatus `json:"status"`
}

// ConversationUpdatePayload — полный пересчитанный список бесед наблюдателя.
type ConversationUpdatePayload struct {
	Conversations []conversation.Summary `json:"conversations"`
}
