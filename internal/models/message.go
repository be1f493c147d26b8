package models

import (
	"strings"
	"time"
)

// MessageType is the coarse kind of a chat message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypePDF   MessageType = "pdf"
)

// MessageTypeForMIME maps an uploaded file's MIME type to a message type.
// Anything that is not an image is treated as a PDF; the original MIME string is not kept.
func MessageTypeForMIME(mime string) MessageType {
	if strings.HasPrefix(strings.ToLower(mime), "image/") {
		return MessageTypeImage
	}
	return MessageTypePDF
}

// Message is a single chat entry inside a conversation.
type Message struct {
	BaseModel
	ConversationID string      `gorm:"size:36;index;not null" json:"conversationId"`
	SenderRole     Role        `gorm:"size:20;not null" json:"senderRole"`
	SenderID       string      `gorm:"size:36;index;not null" json:"senderId"`
	MessageText    string      `gorm:"type:text" json:"messageText"`
	AttachmentURL  string      `gorm:"size:512" json:"attachmentUrl,omitempty"`
	MessageType    MessageType `gorm:"size:10;default:'text'" json:"messageType"`
	IsRead         bool        `gorm:"default:false;index" json:"isRead"`
	ReadAt         *time.Time  `json:"readAt,omitempty"`

	Conversation *Conversation `gorm:"foreignKey:ConversationID" json:"-"`
}

// Preview is the text stored as the conversation's last message.
func (m *Message) Preview() string {
	if text := strings.TrimSpace(m.MessageText); text != "" {
		return text
	}
	switch m.MessageType {
	case MessageTypeImage:
		return "Sent an image"
	case MessageTypePDF:
		return "Sent a document"
	}
	return ""
}
