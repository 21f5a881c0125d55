package models

import "time"

// UndecryptableText replaces message bodies whose ciphertext cannot be opened.
const UndecryptableText = "[Error decrypting message]"

// Message is a direct message. Ciphertext is stored raw; Text is only populated
// on the way out of the messaging service.
type Message struct {
	ID             string           `json:"id"`
	SenderID       string           `json:"sender_id"`
	SenderUsername string           `json:"sender_username,omitempty"`
	ReceiverID     string           `json:"receiver_id"`
	Ciphertext     []byte           `json:"-"`
	Text           string           `json:"text"`
	Blocked        bool             `json:"-"`
	Timestamp      time.Time        `json:"timestamp"`
	Attachment     *MediaAttachment `json:"attachment,omitempty"`
	IsSender       bool             `json:"is_sender"`
}

type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypeGIF   FileType = "gif"
	FileTypeSVG   FileType = "svg"
	FileTypeVideo FileType = "video"
	FileTypeFile  FileType = "file"
)

// MediaAttachment belongs to exactly one message and is immutable once
// written. Deleting the message deletes it.
type MediaAttachment struct {
	ID               string    `json:"id"`
	MessageID        string    `json:"message_id"`
	FileType         FileType  `json:"file_type"`
	OriginalFilename string    `json:"original_filename"`
	Size             int64     `json:"size"`
	Ciphertext       []byte    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConversationQuery selects one page of the history between Viewer and Peer.
// Pages count back from the newest message.
type ConversationQuery struct {
	ViewerID string
	PeerID   string
	// HidePeer drops everything Peer sent, used when Viewer blocked Peer.
	HidePeer bool
	Limit    int
	Offset   int
}

// AttachmentUpload is the plaintext attachment supplied by a sender.
type AttachmentUpload struct {
	Filename string
	Data     []byte
}

// SendOutcome is the result of the per-send delivery state machine.
type SendOutcome string

const (
	OutcomeRejected            SendOutcome = "REJECTED"
	OutcomePersistedSuppressed SendOutcome = "PERSISTED_SUPPRESSED"
	OutcomePersistedDelivered  SendOutcome = "PERSISTED_DELIVERED"
)
