// Package realtime relays chat events to websocket clients grouped in rooms.
package realtime

import (
	"encoding/json"
	"time"

	"swasthyaconnect-server/internal/models"
)

// Client to server events
const (
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventSendMessage       = "sendMessage"
	EventTyping            = "typing"
	EventStopTyping        = "stopTyping"
	EventMessageRead       = "messageRead"
)

// Server to client events
const (
	EventJoinedConversation  = "joinedConversation"
	EventLeftConversation    = "leftConversation"
	EventReceiveMessage      = "receiveMessage"
	EventUserTyping          = "userTyping"
	EventUserStoppedTyping   = "userStoppedTyping"
	EventMessageReadReceipt  = "messageReadReceipt"
	EventReceiveNotification = "receiveNotification"
	EventError               = "error"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ConversationRef is the payload of join, leave and typing events.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// SendMessagePayload is the payload of sendMessage.
type SendMessagePayload struct {
	ConversationID string `json:"conversationId"`
	MessageText    string `json:"messageText"`
}

// MessageReadPayload is the payload of messageRead.
type MessageReadPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// TypingNotice is sent to the other subscribers of a conversation.
type TypingNotice struct {
	ConversationID string      `json:"conversationId"`
	UserID         string      `json:"userId"`
	Role           models.Role `json:"role"`
}

// ReadReceipt tells the sender that a message was seen.
type ReadReceipt struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	ReaderID       string    `json:"readerId"`
	ReadAt         time.Time `json:"readAt"`
}

// Notification is delivered on a user's private room.
type Notification struct {
	Type    string      `json:"type"`
	Title   string      `json:"title"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorPayload carries a human readable message and a stable code.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// UserRoom is the private room every connection of a user joins.
func UserRoom(userID string) string {
	return "user:" + userID
}

// ConversationRoom is the room of one conversation.
func ConversationRoom(conversationID string) string {
	return "conversation:" + conversationID
}

func encode(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
