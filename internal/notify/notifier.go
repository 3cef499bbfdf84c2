// Package notify is the post-commit notification collaborator. The
// booking core only promises "fire after the transition commits"; the
// actual channels (email, SMS, PDF receipts) are out of scope, so the
// shipped implementation writes structured log lines.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/medibook/booking/internal/booking"
)

type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) AppointmentCreated(ctx context.Context, appt booking.Appointment) {
	n.event(appt).Msg("appointment created")
}

func (n *LogNotifier) AppointmentConfirmed(ctx context.Context, appt booking.Appointment) {
	n.event(appt).Msg("appointment confirmed")
}

func (n *LogNotifier) AppointmentCancelled(ctx context.Context, appt booking.Appointment, reason *string) {
	ev := n.event(appt)
	if reason != nil {
		ev = ev.Str("reason", *reason)
	}
	ev.Msg("appointment cancelled")
}

func (n *LogNotifier) AppointmentRescheduled(ctx context.Context, appt booking.Appointment, oldStart time.Time) {
	n.event(appt).Time("old_start", oldStart).Msg("appointment rescheduled")
}

func (n *LogNotifier) AppointmentReminder(ctx context.Context, appt booking.Appointment) {
	n.event(appt).Msg("appointment reminder")
}

func (n *LogNotifier) event(appt booking.Appointment) *zerolog.Event {
	return log.Info().
		Str("appointment", appt.Number).
		Str("patient_id", appt.PatientID.String()).
		Str("doctor_id", appt.DoctorID.String()).
		Time("scheduled_at", appt.ScheduledAt)
}
