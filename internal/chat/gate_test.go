package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swasthyaconnect-server/internal/models"
	"swasthyaconnect-server/internal/testutil"
)

func TestGate_AuthorizeAppointment(t *testing.T) {
	db := testutil.NewTestDB(t)
	gate := NewGate(db)
	ctx := context.Background()

	patient := testutil.CreateUser(t, db, models.RolePatient, "Asha")
	doctor := testutil.CreateUser(t, db, models.RoleDoctor, "Ravi")
	stranger := testutil.CreateUser(t, db, models.RolePatient, "Kiran")

	pending := testutil.CreateAppointment(t, db, patient, doctor, models.StatusPending)
	confirmed := testutil.CreateAppointment(t, db, patient, doctor, models.StatusConfirmed)

	tests := []struct {
		name          string
		caller        *models.User
		appointmentID string
		wantErr       error
		wantStatus    models.AppointmentStatus
	}{
		{name: "missing appointment", caller: patient, appointmentID: models.NewID(), wantErr: ErrAppointmentNotFound},
		{name: "stranger on confirmed", caller: stranger, appointmentID: confirmed.ID, wantErr: ErrNotParticipant},
		{name: "stranger on pending is still forbidden first", caller: stranger, appointmentID: pending.ID, wantErr: ErrNotParticipant},
		{name: "patient on pending", caller: patient, appointmentID: pending.ID, wantStatus: models.StatusPending},
		{name: "doctor on pending", caller: doctor, appointmentID: pending.ID, wantStatus: models.StatusPending},
		{name: "patient on confirmed", caller: patient, appointmentID: confirmed.ID},
		{name: "doctor on confirmed", caller: doctor, appointmentID: confirmed.ID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caller := Caller{ID: tt.caller.ID, Role: tt.caller.Role}
			appt, err := gate.AuthorizeAppointment(ctx, caller, tt.appointmentID)

			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, appt)
			case tt.wantStatus != "":
				var notAvailable *NotAvailableError
				require.ErrorAs(t, err, &notAvailable)
				assert.Equal(t, tt.wantStatus, notAvailable.Status)
				assert.Contains(t, err.Error(), string(tt.wantStatus))
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.appointmentID, appt.ID)
			}
		})
	}
}

func TestGate_AuthorizeConversationFollowsAppointmentStatus(t *testing.T) {
	db := testutil.NewTestDB(t)
	gate := NewGate(db)
	ctx := context.Background()

	patient := testutil.CreateUser(t, db, models.RolePatient, "Asha")
	doctor := testutil.CreateUser(t, db, models.RoleDoctor, "Ravi")
	appt := testutil.CreateAppointment(t, db, patient, doctor, models.StatusConfirmed)

	conv := &models.Conversation{AppointmentID: appt.ID, DoctorID: doctor.ID, PatientID: patient.ID}
	require.NoError(t, db.Create(conv).Error)

	caller := Caller{ID: patient.ID, Role: models.RolePatient}

	got, err := gate.AuthorizeConversation(ctx, caller, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)
	require.NotNil(t, got.Appointment)
	assert.Equal(t, models.StatusConfirmed, got.Appointment.Status)

	for _, status := range []models.AppointmentStatus{models.StatusCompleted, models.StatusCancelled, models.StatusRejected, models.StatusPending} {
		testutil.SetAppointmentStatus(t, db, appt, status)
		_, err = gate.AuthorizeConversation(ctx, caller, conv.ID)
		assert.True(t, IsNotAvailable(err), "status %s should lock the conversation", status)
	}

	testutil.SetAppointmentStatus(t, db, appt, models.StatusConfirmed)
	_, err = gate.AuthorizeConversation(ctx, caller, conv.ID)
	assert.NoError(t, err)

	_, err = gate.AuthorizeConversation(ctx, caller, models.NewID())
	assert.ErrorIs(t, err, ErrConversationNotFound)

	other := testutil.CreateUser(t, db, models.RoleDoctor, "Meera")
	_, err = gate.AuthorizeConversation(ctx, Caller{ID: other.ID, Role: models.RoleDoctor}, conv.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}
