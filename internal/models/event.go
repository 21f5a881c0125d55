package models

// Chat event types pushed over the live channel.
const (
	EventDirectMessage  = "chat_message"
	EventGroupMessage   = "group_message"
	EventMessageDeleted = "message_deleted"
	EventError          = "error"
	EventBlocked        = "blocked"
)

// ChatEvent is one frame sent to a connected client.
type ChatEvent struct {
	Type         string        `json:"type"`
	Message      *Message      `json:"message,omitempty"`
	GroupMessage *GroupMessage `json:"group_message,omitempty"`
	MessageID    string        `json:"message_id,omitempty"`
	UserID       string        `json:"user_id,omitempty"`
	Error        string        `json:"error,omitempty"`
}
