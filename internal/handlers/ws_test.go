package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/realtime"
	"swasthyaconnect-server/internal/testutil"
)

func dialSocket(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(realtime.Envelope{Event: event, Data: raw}))
}

// awaitEvent reads until event arrives, skipping anything else.
func awaitEvent(t *testing.T, conn *websocket.Conn, event string) realtime.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var env realtime.Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event {
			return env
		}
	}
}

func TestSocket_RelaysMessageBetweenParties(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusConfirmed)
	conv := e.openConversation(t, p.patientToken, p.appt.ID)

	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	patientConn := dialSocket(t, srv, p.patientToken)
	doctorConn := dialSocket(t, srv, p.doctorToken)

	ref := realtime.ConversationRef{ConversationID: conv.ID}
	sendEvent(t, patientConn, realtime.EventJoinConversation, ref)
	awaitEvent(t, patientConn, realtime.EventJoinedConversation)
	sendEvent(t, doctorConn, realtime.EventJoinConversation, ref)
	awaitEvent(t, doctorConn, realtime.EventJoinedConversation)

	sendEvent(t, patientConn, realtime.EventTyping, ref)
	typing := awaitEvent(t, doctorConn, realtime.EventUserTyping)
	assert.Contains(t, string(typing.Data), p.patient.ID)

	sendEvent(t, patientConn, realtime.EventSendMessage,
		realtime.SendMessagePayload{ConversationID: conv.ID, MessageText: "Is the fever normal?"})

	got := awaitEvent(t, doctorConn, realtime.EventReceiveMessage)
	var msg models.Message
	require.NoError(t, json.Unmarshal(got.Data, &msg))
	assert.Equal(t, conv.ID, msg.ConversationID)
	assert.Equal(t, "Is the fever normal?", msg.MessageText)
	assert.Equal(t, p.patient.ID, msg.SenderID)
	assert.NotEmpty(t, msg.ID)

	// The relayed message was persisted like a REST send.
	assert.Equal(t, 1, e.conversation(t, conv.ID).UnreadCount.Doctor)

	// The sender sees its own message but never its own typing notice.
	echo := awaitEvent(t, patientConn, realtime.EventReceiveMessage)
	assert.Contains(t, string(echo.Data), msg.ID)
}

func TestSocket_JoinLockedConversation(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusConfirmed)
	conv := e.openConversation(t, p.patientToken, p.appt.ID)
	testutil.SetAppointmentStatus(t, e.db, p.appt, models.StatusCancelled)

	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)

	conn := dialSocket(t, srv, p.patientToken)
	sendEvent(t, conn, realtime.EventJoinConversation, realtime.ConversationRef{ConversationID: conv.ID})

	env := awaitEvent(t, conn, realtime.EventError)
	var payload realtime.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Data, &payload))
	assert.Equal(t, "CHAT_NOT_AVAILABLE", payload.Code)
	assert.Contains(t, payload.Message, "cancelled")
}

func TestSocket_Handshake(t *testing.T) {
	e := newTestEnv(t)
	verified := testutil.CreateUser(t, e.db, models.RolePatient, "asha")
	unverified := testutil.CreateUser(t, e.db, models.RolePatient, "neel")
	require.NoError(t, e.db.Model(unverified).Update("is_verified", false).Error)

	srv := httptest.NewServer(e.router)
	t.Cleanup(srv.Close)
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws"

	tests := []struct {
		name       string
		url        string
		header     http.Header
		wantStatus int
	}{
		{"missing token", base, nil, http.StatusUnauthorized},
		{"bad token", base + "?token=nope", nil, http.StatusUnauthorized},
		{"unverified user", base + "?token=" + e.token(t, unverified), nil, http.StatusForbidden},
		{"foreign origin", base + "?token=" + e.token(t, verified), http.Header{"Origin": {"http://evil.example"}}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tt.url, tt.header)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	t.Run("bearer header", func(t *testing.T) {
		conn, resp, err := websocket.DefaultDialer.Dial(base, http.Header{"Authorization": {"Bearer " + e.token(t, verified)}})
		require.NoError(t, err)
		defer conn.Close()
		defer resp.Body.Close()
		assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	})
}
