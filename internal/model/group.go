package model

import "time"

// Group — учебная группа. Members — множество userID; гварды членства
// (join требует отсутствия, leave — присутствия) проверяются до записи.
type Group struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	ImageURL     string    `json:"image"`
	CreatorID    string    `json:"createdBy"`
	Members      []string  `json:"members"`
	MaxMembers   int       `json:"maxMembers,omitempty"` // 0 — без лимита
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActive"`
}

// HasMember reports whether userID is in the member set.
func (g *Group) HasMember(userID string) bool {
	for _, id := range g.Members {
		if id == userID {
			return true
		}
	}
	return false
}
