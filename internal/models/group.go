package models

import "time"

type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatorID   string    `json:"creator_id"`
	MemberIDs   []string  `json:"member_ids"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsMember reports whether userID is currently in the group.
func (g *Group) IsMember(userID string) bool {
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type GroupMessage struct {
	ID             string    `json:"id"`
	GroupID        string    `json:"group_id"`
	SenderID       string    `json:"sender_id"`
	SenderUsername string    `json:"sender_username,omitempty"`
	Ciphertext     []byte    `json:"-"`
	Text           string    `json:"text"`
	Timestamp      time.Time `json:"timestamp"`
	IsSender       bool      `json:"is_sender"`
}
