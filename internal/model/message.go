package model

import "time"

// Message is a direct message between two users. Append-only: after insert
// the only mutable field is Seen, and its only transition is false -> true.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"to"`
	Body        string    `json:"text"`
	Seen        bool      `json:"seen"`
	CreatedAt   time.Time `json:"timestamp"`
}

// Resolved reports whether the server timestamp has been assigned.
// Optimistic local echoes carry a zero CreatedAt and must be excluded
// from conversation aggregation until the stored record arrives.
func (m *Message) Resolved() bool {
	return !m.CreatedAt.IsZero()
}

// PeerOf returns the other participant of the conversation relative to self,
// or "" if self is not a participant.
func (m *Message) PeerOf(self string) string {
	switch self {
	case m.SenderID:
		return m.RecipientID
	case m.RecipientID:
		return m.SenderID
	}
	return ""
}
