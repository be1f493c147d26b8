package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"swasthyaconnect-server/internal/chat"
	"swasthyaconnect-server/internal/middleware"
	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/realtime"
	"swasthyaconnect-server/internal/storage"
	"swasthyaconnect-server/internal/utils"
)

// MessageHandler handles the appointment-gated chat endpoints.
type MessageHandler struct {
	Chat *chat.Service
	Hub  *realtime.Hub
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(svc *chat.Service, hub *realtime.Hub) *MessageHandler {
	return &MessageHandler{Chat: svc, Hub: hub}
}

// callerFromContext builds the chat caller from the authenticated context.
func callerFromContext(c *gin.Context) (chat.Caller, bool) {
	userID, ok := middleware.GetUserIDFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		return chat.Caller{}, false
	}
	role, _ := middleware.GetUserRoleFromContext(c)
	return chat.Caller{ID: userID, Role: role}, true
}

// respondChatError maps chat and upload errors onto the response envelope.
func respondChatError(c *gin.Context, err error) {
	var notAvailable *chat.NotAvailableError
	switch {
	case errors.As(err, &notAvailable):
		utils.ErrorWithCode(c, http.StatusForbidden, utils.CodeChatNotAvailable, err.Error(),
			gin.H{"appointmentStatus": notAvailable.Status})
	case errors.Is(err, chat.ErrNotParticipant):
		utils.Forbidden(c, err.Error())
	case errors.Is(err, chat.ErrAppointmentNotFound),
		errors.Is(err, chat.ErrConversationNotFound),
		errors.Is(err, chat.ErrMessageNotFound):
		utils.NotFound(c, capitalize(err.Error()))
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, chat.ErrMessageTooLong):
		utils.BadRequest(c, capitalize(err.Error()))
	case errors.Is(err, storage.ErrNoFile),
		errors.Is(err, storage.ErrEmptyFile),
		errors.Is(err, storage.ErrFileTooLarge),
		errors.Is(err, storage.ErrUnsupportedType):
		utils.ErrorWithCode(c, http.StatusBadRequest, utils.CodeInvalidFile, capitalize(err.Error()), nil)
	case errors.Is(err, storage.ErrWriteFailed):
		log.Error().Err(err).Msg("attachment storage failed")
		utils.ErrorWithCode(c, http.StatusInternalServerError, utils.CodeStorage, "Failed to store the file, please try again", nil)
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("chat request failed")
		utils.InternalServerError(c, "Internal server error")
	}
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func (h *MessageHandler) broadcast(c *gin.Context, msg *models.Message) {
	if h.Hub == nil {
		return
	}
	if err := h.Hub.EmitToConversation(c.Request.Context(), msg.ConversationID, realtime.EventReceiveMessage, msg); err != nil {
		log.Warn().Err(err).Str("conversation_id", msg.ConversationID).Msg("failed to broadcast message")
	}
}

// GetOrCreateConversation returns the conversation of a confirmed appointment, creating it on first use.
// GET /api/messages/conversation/:appointmentId
func (h *MessageHandler) GetOrCreateConversation(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	conv, err := h.Chat.GetOrCreate(c.Request.Context(), caller, c.Param("appointmentId"))
	if err != nil {
		respondChatError(c, err)
		return
	}

	utils.Success(c, "Conversation fetched successfully", conv.View(caller.Role))
}

// GetConversations lists the caller's conversations, most recent activity first.
// GET /api/messages/conversations
func (h *MessageHandler) GetConversations(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	convs, err := h.Chat.ListForCaller(c.Request.Context(), caller)
	if err != nil {
		respondChatError(c, err)
		return
	}

	views := make([]models.ConversationView, len(convs))
	for i := range convs {
		views[i] = convs[i].View(caller.Role)
	}
	utils.Success(c, "Conversations fetched successfully", views)
}

// GetMessages returns up to the 100 most recent messages in ascending order. Unless
// markRead=false is given, the other party's messages are marked read first.
// GET /api/messages/:conversationId
func (h *MessageHandler) GetMessages(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}
	conversationID := c.Param("conversationId")

	markRead := true
	if raw := c.Query("markRead"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			utils.BadRequest(c, "markRead must be true or false")
			return
		}
		markRead = v
	}

	limit := chat.DefaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			utils.BadRequest(c, "limit must be a positive number")
			return
		}
		limit = v
	}

	if markRead {
		if _, err := h.Chat.MarkRead(c.Request.Context(), caller, conversationID); err != nil {
			respondChatError(c, err)
			return
		}
	}

	msgs, err := h.Chat.ListMessages(c.Request.Context(), caller, conversationID, limit)
	if err != nil {
		respondChatError(c, err)
		return
	}

	utils.Success(c, "Messages fetched successfully", msgs)
}

// MarkRead marks the other party's messages read and resets the caller's unread counter.
// PATCH /api/messages/:conversationId/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	marked, err := h.Chat.MarkRead(c.Request.Context(), caller, c.Param("conversationId"))
	if err != nil {
		respondChatError(c, err)
		return
	}

	utils.Success(c, "Messages marked as read", gin.H{"marked": marked})
}

// SendMessageRequest represents the request body for sending a text message.
type SendMessageRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	MessageText    string `json:"messageText"`
	MessageType    string `json:"messageType" binding:"omitempty,eq=text"`
}

// SendMessage stores a text message and broadcasts it to the conversation room.
// POST /api/messages/send
func (h *MessageHandler) SendMessage(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	msg, err := h.Chat.Send(c.Request.Context(), caller, req.ConversationID, req.MessageText)
	if err != nil {
		respondChatError(c, err)
		return
	}

	h.broadcast(c, msg)
	utils.Created(c, "Message sent successfully", msg)
}

// UploadAttachment stores one JPEG, PNG or PDF file as a message.
// POST /api/messages/upload (multipart: attachment, conversationId, messageText)
func (h *MessageHandler) UploadAttachment(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		return
	}

	conversationID := c.PostForm("conversationId")
	if conversationID == "" {
		utils.BadRequest(c, "conversationId is required")
		return
	}

	file, err := c.FormFile("attachment")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			respondChatError(c, storage.ErrNoFile)
			return
		}
		utils.BadRequest(c, "Invalid multipart form: "+err.Error())
		return
	}

	msg, err := h.Chat.SendAttachment(c.Request.Context(), caller, conversationID, c.PostForm("messageText"), file)
	if err != nil {
		respondChatError(c, err)
		return
	}

	h.broadcast(c, msg)
	utils.Created(c, "File uploaded successfully", msg)
}
