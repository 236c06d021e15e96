package model

import "time"

// PresenceStatus — online/offline. Другой формы присутствия нет: после
// некорректного обрыва соединения запись может остаться "online" до
// следующего явного перехода (heartbeat/TTL не предусмотрен).
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)

type User struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"display_name"`
	Email        string         `json:"email"`
	PhotoURL     string         `json:"photo_url"`
	Status       PresenceStatus `json:"status"`
	LastActiveAt time.Time      `json:"last_active_at"`
	PushEnabled  bool           `json:"push_notifications_enabled"`
	DarkMode     bool           `json:"dark_mode"`
	CreatedAt    time.Time      `json:"created_at"`
}

// UserPublic — представление пользователя для других участников.
type UserPublic struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"display_name"`
	PhotoURL     string         `json:"photo_url"`
	Status       PresenceStatus `json:"status"`
	LastActiveAt time.Time      `json:"last_active_at"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:           u.ID,
		DisplayName:  u.DisplayName,
		PhotoURL:     u.PhotoURL,
		Status:       u.Status,
		LastActiveAt: u.LastActiveAt,
	}
}
