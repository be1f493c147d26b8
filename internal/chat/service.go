package chat

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/storage"
)

const (
	// DefaultMessageLimit caps how many of the most recent messages a listing returns.
	DefaultMessageLimit = 100
	MaxMessageLength    = 5000

	AttachmentCategory = "chat"
)

// AttachmentStore persists uploaded chat attachments.
type AttachmentStore interface {
	Save(category string, fh *multipart.FileHeader) (*storage.File, error)
	Remove(path string) error
}

// Service holds the conversation and message operations. Every operation that touches
// a conversation goes through the Gate first.
type Service struct {
	db    *gorm.DB
	gate  *Gate
	files AttachmentStore
	now   func() time.Time
}

// NewService creates a chat service.
func NewService(db *gorm.DB, gate *Gate, files AttachmentStore) *Service {
	return &Service{db: db, gate: gate, files: files, now: time.Now}
}

// Gate returns the gate shared with the real-time relay.
func (s *Service) Gate() *Gate {
	return s.gate
}

// GetOrCreate returns the conversation of a confirmed appointment, creating it on first use.
// Concurrent first calls converge on one row through the unique appointment index.
func (s *Service) GetOrCreate(ctx context.Context, caller Caller, appointmentID string) (*models.Conversation, error) {
	appt, err := s.gate.AuthorizeAppointment(ctx, caller, appointmentID)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	conv := &models.Conversation{
		AppointmentID: appt.ID,
		DoctorID:      appt.DoctorID,
		PatientID:     appt.PatientID,
	}
	// Losing the race inserts nothing; the re-read below picks up the winner's row.
	if err := db.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "appointment_id"}}, DoNothing: true}).
		Create(conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	var stored models.Conversation
	err = db.Preload("Doctor").Preload("Patient").Preload("Appointment").
		First(&stored, "appointment_id = ?", appt.ID).Error
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return &stored, nil
}

// ListForCaller returns every conversation the caller is part of, most recent activity first.
// Listing is not gated so locked conversations stay visible.
func (s *Service) ListForCaller(ctx context.Context, caller Caller) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Doctor").Preload("Patient").Preload("Appointment").
		Where("doctor_id = ? OR patient_id = ?", caller.ID, caller.ID).
		Order("last_message_at DESC").
		Order("created_at DESC").
		Find(&convs).Error
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// Send stores a text message and, in the same transaction, updates the conversation preview
// and increments the recipient's unread counter.
func (s *Service) Send(ctx context.Context, caller Caller, conversationID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if len([]rune(text)) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	conv, err := s.gate.AuthorizeConversation(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}
	return s.insert(ctx, conv, caller, text, "", models.MessageTypeText)
}

// SendAttachment stores an uploaded file and appends it as a message. The file is checked
// before anything is written and removed again if the message cannot be stored.
func (s *Service) SendAttachment(ctx context.Context, caller Caller, conversationID, text string, fh *multipart.FileHeader) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if len([]rune(text)) > MaxMessageLength {
		return nil, ErrMessageTooLong
	}

	conv, err := s.gate.AuthorizeConversation(ctx, caller, conversationID)
	if err != nil {
		return nil, err
	}

	file, err := s.files.Save(AttachmentCategory, fh)
	if err != nil {
		return nil, err
	}

	msg, err := s.insert(ctx, conv, caller, text, file.URL, models.MessageTypeForMIME(file.ContentType))
	if err != nil {
		if rmErr := s.files.Remove(file.Path); rmErr != nil {
			log.Error().Err(rmErr).Str("path", file.Path).Msg("failed to remove orphaned attachment")
		}
		return nil, err
	}
	return msg, nil
}

func (s *Service) insert(ctx context.Context, conv *models.Conversation, caller Caller, text, attachmentURL string, msgType models.MessageType) (*models.Message, error) {
	role := partyRole(conv, caller.ID)
	msg := &models.Message{
		ConversationID: conv.ID,
		SenderRole:     role,
		SenderID:       caller.ID,
		MessageText:    text,
		AttachmentURL:  attachmentURL,
		MessageType:    msgType,
	}
	msg.CreatedAt = s.now()

	// Both this and MarkRead write the conversation row first, so the row lock orders them.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		unread := models.UnreadColumn(otherRole(role))
		res := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(map[string]interface{}{
			"last_message":    msg.Preview(),
			"last_message_at": msg.CreatedAt,
			unread:            gorm.Expr(unread + " + 1"),
		})
		if res.Error != nil {
			return fmt.Errorf("update conversation: %w", res.Error)
		}
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns up to limit of the most recent messages in ascending creation order.
// It does not change read state.
func (s *Service) ListMessages(ctx context.Context, caller Caller, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > DefaultMessageLimit {
		limit = DefaultMessageLimit
	}

	if _, err := s.gate.AuthorizeConversation(ctx, caller, conversationID); err != nil {
		return nil, err
	}

	var msgs []models.Message
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MarkRead flags every unread message from the other party as read and resets the
// caller's unread counter. It returns how many messages changed.
func (s *Service) MarkRead(ctx context.Context, caller Caller, conversationID string) (int64, error) {
	conv, err := s.gate.AuthorizeConversation(ctx, caller, conversationID)
	if err != nil {
		return 0, err
	}

	role := partyRole(conv, caller.ID)
	now := s.now()
	var marked int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The counter goes first: a send that commits after this waits on the row and counts again.
		if err := tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
			Update(models.UnreadColumn(role), 0).Error; err != nil {
			return fmt.Errorf("reset unread count: %w", err)
		}

		res := tx.Model(&models.Message{}).
			Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conv.ID, caller.ID, false).
			Updates(map[string]interface{}{"is_read": true, "read_at": now})
		if res.Error != nil {
			return fmt.Errorf("mark messages read: %w", res.Error)
		}
		marked = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// Message returns one message of a conversation the caller may access.
func (s *Service) Message(ctx context.Context, caller Caller, conversationID, messageID string) (*models.Message, error) {
	if _, err := s.gate.AuthorizeConversation(ctx, caller, conversationID); err != nil {
		return nil, err
	}

	var msg models.Message
	err := s.db.WithContext(ctx).First(&msg, "id = ? AND conversation_id = ?", messageID, conversationID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("load message: %w", err)
	}
	return &msg, nil
}
