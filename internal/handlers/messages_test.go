package handlers_test

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/testutil"
	"swasthyaconnect-server/internal/utils"
)

type chatParties struct {
	patient      *models.User
	doctor       *models.User
	appt         *models.Appointment
	patientToken string
	doctorToken  string
}

func newChatParties(t *testing.T, e *testEnv, status models.AppointmentStatus) chatParties {
	t.Helper()

	patient := testutil.CreateUser(t, e.db, models.RolePatient, "asha")
	doctor := testutil.CreateUser(t, e.db, models.RoleDoctor, "ravi")
	return chatParties{
		patient:      patient,
		doctor:       doctor,
		appt:         testutil.CreateAppointment(t, e.db, patient, doctor, status),
		patientToken: e.token(t, patient),
		doctorToken:  e.token(t, doctor),
	}
}

func (e *testEnv) openConversation(t *testing.T, token, appointmentID string) models.ConversationView {
	t.Helper()

	w, env := e.do(t, http.MethodGet, "/api/messages/conversation/"+appointmentID, token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return dataAs[models.ConversationView](t, env)
}

func (e *testEnv) conversation(t *testing.T, id string) models.Conversation {
	t.Helper()

	var conv models.Conversation
	require.NoError(t, e.db.First(&conv, "id = ?", id).Error)
	return conv
}

func TestGetConversation_PendingAppointmentIsLocked(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusPending)

	w, env := e.do(t, http.MethodGet, "/api/messages/conversation/"+p.appt.ID, p.patientToken, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, utils.CodeChatNotAvailable, env.Code)
	assert.Contains(t, env.Error, "pending")
	assert.Equal(t, "pending", env.Details["appointmentStatus"])

	var count int64
	require.NoError(t, e.db.Model(&models.Conversation{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGetConversation_Outsiders(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusConfirmed)
	stranger := testutil.CreateUser(t, e.db, models.RolePatient, "mira")
	admin := testutil.CreateUser(t, e.db, models.RoleAdmin, "root")

	tests := []struct {
		name       string
		token      string
		path       string
		wantStatus int
	}{
		{"other patient", e.token(t, stranger), "/api/messages/conversation/" + p.appt.ID, http.StatusForbidden},
		{"admin has no chat", e.token(t, admin), "/api/messages/conversation/" + p.appt.ID, http.StatusForbidden},
		{"unknown appointment", p.patientToken, "/api/messages/conversation/" + models.NewID(), http.StatusNotFound},
		{"no token", "", "/api/messages/conversation/" + p.appt.ID, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := e.do(t, http.MethodGet, tt.path, tt.token, nil)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestChat_ConfirmSendAndRead(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusPending)

	w, _ := e.do(t, http.MethodPatch, "/api/appointments/"+p.appt.ID+"/status", p.doctorToken,
		map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	conv := e.openConversation(t, p.patientToken, p.appt.ID)
	assert.Equal(t, p.appt.ID, conv.AppointmentID)
	require.NotNil(t, conv.Doctor)
	assert.Equal(t, "ravi Test", conv.Doctor.Name)

	w, env := e.do(t, http.MethodPost, "/api/messages/send", p.patientToken,
		map[string]string{"conversationId": conv.ID, "messageText": "Hello"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sent := dataAs[models.Message](t, env)
	assert.Equal(t, models.RolePatient, sent.SenderRole)
	assert.Equal(t, models.MessageTypeText, sent.MessageType)

	stored := e.conversation(t, conv.ID)
	assert.Equal(t, 1, stored.UnreadCount.Doctor)
	assert.Equal(t, 0, stored.UnreadCount.Patient)
	assert.Equal(t, "Hello", stored.LastMessage)

	w, env = e.do(t, http.MethodGet, "/api/messages/conversations", p.doctorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := dataAs[[]models.ConversationView](t, env)
	require.Len(t, listed, 1)
	assert.Equal(t, 1, listed[0].Unread)

	// A pure read leaves the counter alone.
	w, env = e.do(t, http.MethodGet, "/api/messages/"+conv.ID+"?markRead=false", p.doctorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs := dataAs[[]models.Message](t, env)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].IsRead)
	assert.Equal(t, 1, e.conversation(t, conv.ID).UnreadCount.Doctor)

	w, env = e.do(t, http.MethodGet, "/api/messages/"+conv.ID, p.doctorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	msgs = dataAs[[]models.Message](t, env)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello", msgs[0].MessageText)
	assert.True(t, msgs[0].IsRead)
	assert.Equal(t, 0, e.conversation(t, conv.ID).UnreadCount.Doctor)
}

func TestChat_MarkReadEndpoint(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusConfirmed)
	conv := e.openConversation(t, p.doctorToken, p.appt.ID)

	for _, text := range []string{"Take rest", "Drink water"} {
		w, _ := e.do(t, http.MethodPost, "/api/messages/send", p.doctorToken,
			map[string]string{"conversationId": conv.ID, "messageText": text})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	assert.Equal(t, 2, e.conversation(t, conv.ID).UnreadCount.Patient)

	w, env := e.do(t, http.MethodPatch, "/api/messages/"+conv.ID+"/read", p.patientToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(2), dataAs[map[string]float64](t, env)["marked"])
	assert.Equal(t, 0, e.conversation(t, conv.ID).UnreadCount.Patient)
}

func TestChat_LockedAfterStatusChange(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusConfirmed)
	conv := e.openConversation(t, p.patientToken, p.appt.ID)

	testutil.SetAppointmentStatus(t, e.db, p.appt, models.StatusCompleted)

	w, env := e.do(t, http.MethodPost, "/api/messages/send", p.patientToken,
		map[string]string{"conversationId": conv.ID, "messageText": "One more thing"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, utils.CodeChatNotAvailable, env.Code)
	assert.Contains(t, env.Error, "completed")

	w, _ = e.do(t, http.MethodGet, "/api/messages/"+conv.ID, p.patientToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSendMessage_Validation(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusConfirmed)
	conv := e.openConversation(t, p.patientToken, p.appt.ID)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"missing conversation", map[string]string{"messageText": "Hi"}},
		{"blank text", map[string]string{"conversationId": conv.ID, "messageText": "   "}},
		{"non-text type", map[string]string{"conversationId": conv.ID, "messageText": "Hi", "messageType": "image"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := e.do(t, http.MethodPost, "/api/messages/send", p.patientToken, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestUploadAttachment(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusConfirmed)
	conv := e.openConversation(t, p.patientToken, p.appt.ID)

	w, env := e.upload(t, "/api/messages/upload", p.patientToken,
		map[string]string{"conversationId": conv.ID},
		&formFile{field: "attachment", name: "rash.png", contentType: "image/png", content: pngBytes(2048)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	msg := dataAs[models.Message](t, env)
	assert.Equal(t, models.MessageTypeImage, msg.MessageType)
	assert.Contains(t, msg.AttachmentURL, "/uploads/chat/")
	assert.Equal(t, "Sent an image", e.conversation(t, conv.ID).LastMessage)

	// The stored file is served from its public URL.
	req, _ := http.NewRequest(http.MethodGet, msg.AttachmentURL, nil)
	served := e.serve(req, "")
	assert.Equal(t, http.StatusOK, served.Code)
	assert.Equal(t, 2048, served.Body.Len())
}

func TestUploadAttachment_TooLarge(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusConfirmed)
	conv := e.openConversation(t, p.patientToken, p.appt.ID)

	w, env := e.upload(t, "/api/messages/upload", p.patientToken,
		map[string]string{"conversationId": conv.ID},
		&formFile{field: "attachment", name: "scan.png", contentType: "image/png", content: pngBytes(6 << 20)})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, utils.CodeInvalidFile, env.Code)

	var count int64
	require.NoError(t, e.db.Model(&models.Message{}).Count(&count).Error)
	assert.Zero(t, count)

	entries, err := os.ReadDir(filepath.Join(e.cfg.Uploads.Dir, "chat"))
	if err == nil {
		assert.Empty(t, entries)
	} else {
		assert.True(t, os.IsNotExist(err))
	}
}

func TestUploadAttachment_Rejected(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusConfirmed)
	conv := e.openConversation(t, p.patientToken, p.appt.ID)

	tests := []struct {
		name     string
		file     *formFile
		wantCode string
	}{
		{"no file", nil, utils.CodeInvalidFile},
		{"unsupported type", &formFile{field: "attachment", name: "notes.txt", contentType: "text/plain", content: []byte("hi")}, utils.CodeInvalidFile},
		{"extension mismatch", &formFile{field: "attachment", name: "scan.exe", contentType: "image/png", content: pngBytes(16)}, utils.CodeInvalidFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := e.upload(t, "/api/messages/upload", p.patientToken, map[string]string{"conversationId": conv.ID}, tt.file)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, env.Code)
		})
	}
}

func TestGetConversations_ListsOnlyOwn(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusConfirmed)
	e.openConversation(t, p.patientToken, p.appt.ID)

	other := newChatParties(t, e, models.StatusConfirmed)
	e.openConversation(t, other.patientToken, other.appt.ID)

	w, env := e.do(t, http.MethodGet, "/api/messages/conversations", p.doctorToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	convs := dataAs[[]models.ConversationView](t, env)
	require.Len(t, convs, 1)
	assert.Equal(t, p.appt.ID, convs[0].AppointmentID)
}
