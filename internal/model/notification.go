package model

import "time"

// NotificationKind — тип активности, породившей уведомление.
type NotificationKind string

const (
	KindMessage     NotificationKind = "message"
	KindMeeting     NotificationKind = "meeting"
	KindDocument    NotificationKind = "document"
	KindGroupUpdate NotificationKind = "group_update"
	KindGroupLeave  NotificationKind = "group_leave"
	// KindGroupJoin — уведомление создателю группы о новом участнике.
	KindGroupJoin NotificationKind = "group_join"
)

// Notification — запись на одного получателя. Fan-out создаёт по одной
// на каждого участника группы, кроме инициатора. Read: false -> true.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"userId"`
	ActorID     string           `json:"senderUserId"`
	GroupID     string           `json:"groupId,omitempty"`
	Kind        NotificationKind `json:"type"`
	Content     string           `json:"content"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"timestamp"`
}

// PushTitle — заголовок пуш-уведомления по типу активности.
func (k NotificationKind) PushTitle() string {
	switch k {
	case KindMessage:
		return "New Message"
	case KindMeeting:
		return "Meeting Reminder"
	case KindDocument:
		return "New Document"
	default:
		return "Study Group Notification"
	}
}
