package booking

import (
	"context"
	"time"
)

// Gateway is the payment collaborator the engine calls during
// cancellation. Settlement outcomes travel the other way, through
// Confirm / RecordPaymentFailure.
type Gateway interface {
	Refund(ctx context.Context, transactionID string, amountCents int64, reason string) error
}

// Notifier is invoked after a state transition commits. Calls are
// fire-and-forget: failures are the implementation's problem, never the
// transaction's.
type Notifier interface {
	AppointmentCreated(ctx context.Context, appt Appointment)
	AppointmentConfirmed(ctx context.Context, appt Appointment)
	AppointmentCancelled(ctx context.Context, appt Appointment, reason *string)
	AppointmentRescheduled(ctx context.Context, appt Appointment, oldStart time.Time)
	AppointmentReminder(ctx context.Context, appt Appointment)
}
