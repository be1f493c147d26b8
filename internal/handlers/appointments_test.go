package handlers_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/testutil"
)

func tomorrow() string {
	return time.Now().AddDate(0, 0, 1).Format("2006-01-02")
}

func TestCreateAppointment(t *testing.T) {
	e := newTestEnv(t)
	patient := testutil.CreateUser(t, e.db, models.RolePatient, "asha")
	doctor := testutil.CreateUser(t, e.db, models.RoleDoctor, "ravi")
	token := e.token(t, patient)

	tests := []struct {
		name       string
		token      string
		body       map[string]string
		wantStatus int
	}{
		{"24h slot", token, map[string]string{"doctorId": doctor.ID, "date": tomorrow(), "timeSlot": "14:30", "symptoms": "Fever"}, http.StatusCreated},
		{"12h slot", token, map[string]string{"doctorId": doctor.ID, "date": tomorrow(), "timeSlot": "2:30 PM", "symptoms": "Cough"}, http.StatusCreated},
		{"12h slot before opening", token, map[string]string{"doctorId": doctor.ID, "date": tomorrow(), "timeSlot": "9:30 AM", "symptoms": "Cough"}, http.StatusBadRequest},
		{"12h slot off boundary", token, map[string]string{"doctorId": doctor.ID, "date": tomorrow(), "timeSlot": "10:15 AM", "symptoms": "Cough"}, http.StatusBadRequest},
		{"bad slot", token, map[string]string{"doctorId": doctor.ID, "date": tomorrow(), "timeSlot": "25:00", "symptoms": "Fever"}, http.StatusBadRequest},
		{"past date", token, map[string]string{"doctorId": doctor.ID, "date": "2020-01-01", "timeSlot": "10:00", "symptoms": "Fever"}, http.StatusBadRequest},
		{"bad date", token, map[string]string{"doctorId": doctor.ID, "date": "01/02/2030", "timeSlot": "10:00", "symptoms": "Fever"}, http.StatusBadRequest},
		{"not a doctor", token, map[string]string{"doctorId": patient.ID, "date": tomorrow(), "timeSlot": "10:00", "symptoms": "Fever"}, http.StatusNotFound},
		{"doctor cannot book", e.token(t, doctor), map[string]string{"doctorId": doctor.ID, "date": tomorrow(), "timeSlot": "10:00", "symptoms": "Fever"}, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := e.do(t, http.MethodPost, "/api/appointments", tt.token, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusCreated {
				appt := dataAs[models.AppointmentView](t, env)
				assert.Equal(t, models.StatusPending, appt.Status)
				assert.Equal(t, patient.ID, appt.PatientID)
				require.NotNil(t, appt.Doctor)
			}
		})
	}
}

func TestGetAppointmentsForUser_ScopedByRole(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusPending)
	other := newChatParties(t, e, models.StatusConfirmed)
	admin := testutil.CreateUser(t, e.db, models.RoleAdmin, "root")

	countFor := func(token, query string) int {
		w, env := e.do(t, http.MethodGet, "/api/appointments"+query, token, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		return len(dataAs[[]models.AppointmentView](t, env))
	}

	assert.Equal(t, 1, countFor(p.patientToken, ""))
	assert.Equal(t, 1, countFor(p.doctorToken, ""))
	assert.Equal(t, 2, countFor(e.token(t, admin), ""))
	assert.Equal(t, 1, countFor(e.token(t, admin), "?status=confirmed"))
	assert.Equal(t, 0, countFor(other.patientToken, "?status=pending"))

	w, _ := e.do(t, http.MethodGet, "/api/appointments?status=bogus", p.patientToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(t, http.MethodGet, "/api/appointments/"+p.appt.ID, other.patientToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUpdateAppointmentStatus_Rules(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusPending)
	outsider := testutil.CreateUser(t, e.db, models.RoleDoctor, "kiran")

	tests := []struct {
		name       string
		token      string
		status     string
		wantStatus int
	}{
		{"patient cannot confirm", p.patientToken, "confirmed", http.StatusForbidden},
		{"other doctor", e.token(t, outsider), "confirmed", http.StatusForbidden},
		{"unknown status", p.doctorToken, "rescheduled", http.StatusBadRequest},
		{"doctor confirms", p.doctorToken, "confirmed", http.StatusOK},
		{"patient cancels confirmed", p.patientToken, "cancelled", http.StatusOK},
		{"patient cannot cancel twice", p.patientToken, "cancelled", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := e.do(t, http.MethodPatch, "/api/appointments/"+p.appt.ID+"/status", tt.token,
				map[string]string{"status": tt.status})
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
		})
	}
}

func TestUpdateAppointmentStatus_NotifiesPatient(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusPending)

	w, _ := e.do(t, http.MethodPatch, "/api/appointments/"+p.appt.ID+"/status", p.doctorToken,
		map[string]string{"status": "confirmed"})
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, e.mailer.sent, 1)
	assert.Equal(t, p.patient.Email, e.mailer.sent[0].ToEmail)
	assert.Contains(t, e.mailer.sent[0].Text, "confirmed")
}

func TestDeleteAppointment(t *testing.T) {
	e := newTestEnv(t)
	p := newChatParties(t, e, models.StatusConfirmed)

	w, _ := e.do(t, http.MethodDelete, "/api/appointments/"+p.appt.ID, p.doctorToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	e.openConversation(t, p.patientToken, p.appt.ID)
	w, _ = e.do(t, http.MethodDelete, "/api/appointments/"+p.appt.ID, p.patientToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	fresh := testutil.CreateAppointment(t, e.db, p.patient, p.doctor, models.StatusPending)
	w, _ = e.do(t, http.MethodDelete, "/api/appointments/"+fresh.ID, p.patientToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var count int64
	require.NoError(t, e.db.Model(&models.Appointment{}).Where("id = ?", fresh.ID).Count(&count).Error)
	assert.Zero(t, count)
}
