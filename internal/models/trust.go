package models

import "time"

// UserBlock is a directed edge: Blocker suppresses delivery from Blocked.
type UserBlock struct {
	ID        string    `json:"id"`
	BlockerID string    `json:"blocker_id"`
	BlockedID string    `json:"blocked_id"`
	CreatedAt time.Time `json:"created_at"`
}

type FriendshipStatus string

const (
	FriendshipPending  FriendshipStatus = "PENDING"
	FriendshipAccepted FriendshipStatus = "ACCEPTED"
	FriendshipRejected FriendshipStatus = "REJECTED"
)

type Friendship struct {
	ID         string           `json:"id"`
	SenderID   string           `json:"sender_id"`
	ReceiverID string           `json:"receiver_id"`
	Status     FriendshipStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// BlockState describes both directions of the block relation between two users.
type BlockState struct {
	SenderBlockedReceiver bool
	ReceiverBlockedSender bool
}

// Relation selects which edge kind a symmetric lookup inspects.
type Relation int

const (
	// RelationBlock matches a block in either direction.
	RelationBlock Relation = iota
	// RelationFriend matches an accepted friendship in either direction.
	RelationFriend
)
