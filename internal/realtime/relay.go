package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"swasthyaconnect-server/internal/chat"
	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/utils"
)

const (
	eventTimeout = 10 * time.Second

	codeValidation = utils.CodeValidation
)

// Relay handles client events. Every event that names a conversation is checked
// with the chat gate before anything is joined, stored or forwarded.
type Relay struct {
	hub  *Hub
	chat *chat.Service
}

// NewRelay creates a relay.
func NewRelay(hub *Hub, svc *chat.Service) *Relay {
	return &Relay{hub: hub, chat: svc}
}

// Handle dispatches one client event.
func (r *Relay) Handle(c *Client, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	caller := chat.Caller{ID: c.UserID, Role: c.Role}
	var err error
	switch env.Event {
	case EventJoinConversation:
		err = r.join(ctx, c, caller, env.Data)
	case EventLeaveConversation:
		err = r.leave(c, env.Data)
	case EventSendMessage:
		err = r.sendMessage(ctx, c, caller, env.Data)
	case EventTyping:
		err = r.typing(ctx, c, caller, env.Data, EventUserTyping)
	case EventStopTyping:
		err = r.typing(ctx, c, caller, env.Data, EventUserStoppedTyping)
	case EventMessageRead:
		err = r.messageRead(ctx, c, caller, env.Data)
	default:
		err = errUnknownEvent
	}

	if err != nil {
		log.Debug().Err(err).Str("event", env.Event).Str("user_id", c.UserID).Msg("websocket event rejected")
		r.hub.SendTo(c, EventError, errorPayload(err))
	}
}

var (
	errUnknownEvent       = errors.New("unknown event")
	errMalformedPayload   = errors.New("malformed event payload")
	errConversationNeeded = errors.New("conversationId is required")
	errMessageIDNeeded    = errors.New("messageId is required")
)

func decodeConversationRef(data json.RawMessage) (ConversationRef, error) {
	var ref ConversationRef
	if err := json.Unmarshal(data, &ref); err != nil {
		return ref, errMalformedPayload
	}
	if ref.ConversationID == "" {
		return ref, errConversationNeeded
	}
	return ref, nil
}

func (r *Relay) join(ctx context.Context, c *Client, caller chat.Caller, data json.RawMessage) error {
	ref, err := decodeConversationRef(data)
	if err != nil {
		return err
	}
	if _, err := r.chat.Gate().AuthorizeConversation(ctx, caller, ref.ConversationID); err != nil {
		return err
	}
	r.hub.Join(c, ConversationRoom(ref.ConversationID))
	r.hub.SendTo(c, EventJoinedConversation, ref)
	return nil
}

func (r *Relay) leave(c *Client, data json.RawMessage) error {
	ref, err := decodeConversationRef(data)
	if err != nil {
		return err
	}
	r.hub.Leave(c, ConversationRoom(ref.ConversationID))
	r.hub.SendTo(c, EventLeftConversation, ref)
	return nil
}

// sendMessage stores the message through the chat service and broadcasts the stored row.
func (r *Relay) sendMessage(ctx context.Context, c *Client, caller chat.Caller, data json.RawMessage) error {
	var in SendMessagePayload
	if err := json.Unmarshal(data, &in); err != nil {
		return errMalformedPayload
	}
	if in.ConversationID == "" {
		return errConversationNeeded
	}

	msg, err := r.chat.Send(ctx, caller, in.ConversationID, in.MessageText)
	if err != nil {
		return err
	}
	// The sender's connection may not have joined the room yet; it still gets its echo.
	if !r.hub.InRoom(c, ConversationRoom(in.ConversationID)) {
		r.hub.SendTo(c, EventReceiveMessage, msg)
	}
	return r.hub.EmitToConversation(ctx, in.ConversationID, EventReceiveMessage, msg)
}

func (r *Relay) typing(ctx context.Context, c *Client, caller chat.Caller, data json.RawMessage, event string) error {
	ref, err := decodeConversationRef(data)
	if err != nil {
		return err
	}
	conv, err := r.chat.Gate().AuthorizeConversation(ctx, caller, ref.ConversationID)
	if err != nil {
		return err
	}
	role := models.RolePatient
	if conv.DoctorID == c.UserID {
		role = models.RoleDoctor
	}
	notice := TypingNotice{ConversationID: conv.ID, UserID: c.UserID, Role: role}
	return r.hub.Emit(ctx, ConversationRoom(conv.ID), event, notice, c.ID)
}

// messageRead forwards a receipt. Read state itself changes through the REST mark-read path.
func (r *Relay) messageRead(ctx context.Context, c *Client, caller chat.Caller, data json.RawMessage) error {
	var in MessageReadPayload
	if err := json.Unmarshal(data, &in); err != nil {
		return errMalformedPayload
	}
	if in.ConversationID == "" {
		return errConversationNeeded
	}
	if in.MessageID == "" {
		return errMessageIDNeeded
	}

	msg, err := r.chat.Message(ctx, caller, in.ConversationID, in.MessageID)
	if err != nil {
		return err
	}
	receipt := ReadReceipt{
		ConversationID: in.ConversationID,
		MessageID:      msg.ID,
		ReaderID:       c.UserID,
		ReadAt:         time.Now().UTC(),
	}
	return r.hub.Emit(ctx, ConversationRoom(in.ConversationID), EventMessageReadReceipt, receipt, c.ID)
}

func errorPayload(err error) ErrorPayload {
	var notAvailable *chat.NotAvailableError
	switch {
	case errors.As(err, &notAvailable):
		return ErrorPayload{Message: err.Error(), Code: utils.CodeChatNotAvailable}
	case errors.Is(err, chat.ErrNotParticipant):
		return ErrorPayload{Message: err.Error(), Code: utils.CodeForbidden}
	case errors.Is(err, chat.ErrConversationNotFound),
		errors.Is(err, chat.ErrAppointmentNotFound),
		errors.Is(err, chat.ErrMessageNotFound):
		return ErrorPayload{Message: err.Error(), Code: utils.CodeNotFound}
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong),
		errors.Is(err, errUnknownEvent),
		errors.Is(err, errMalformedPayload),
		errors.Is(err, errConversationNeeded),
		errors.Is(err, errMessageIDNeeded):
		return ErrorPayload{Message: err.Error(), Code: utils.CodeValidation}
	}
	log.Error().Err(err).Msg("websocket event failed")
	return ErrorPayload{Message: "Internal server error", Code: utils.CodeInternal}
}
