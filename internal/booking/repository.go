package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrPaymentNotFound     = errors.New("payment not found")
)

// CreateParams is everything the repository needs to create the pending
// appointment and its payment stub in one transaction.
type CreateParams struct {
	PatientID   uuid.UUID
	SlotID      uuid.UUID
	Reason      *string
	AmountCents int64
	Currency    string
	Method      string
	Now         time.Time
}

// Repository contains all DB interactions needed by the service.
//
// The composite methods (CreatePendingAppointment, ConfirmAppointment,
// CancelAppointment, RescheduleAppointment) each run as a single
// transaction with the slot row locked, so slot state, appointment
// state and payment state move together.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	GetPaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error)

	// CreatePendingAppointment claims an available slot: re-checks the
	// slot under a row lock, inserts the appointment and payment stub.
	// Returns ErrSlotUnavailable when the slot is not claimable.
	CreatePendingAppointment(ctx context.Context, p CreateParams) (*Appointment, error)

	// ConfirmAppointment moves pending/rescheduled to confirmed, marks
	// the payment paid and the slot booked. ErrInvalidTransition when
	// the appointment is not in a confirmable state.
	ConfirmAppointment(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error)

	// CancelAppointment moves an open appointment to cancelled and
	// releases its slot.
	CancelAppointment(ctx context.Context, id uuid.UUID, reason *string, now time.Time) (*Appointment, error)

	// RescheduleAppointment atomically releases the old slot and claims
	// newSlotID for the same doctor. ErrSlotUnavailable when the new
	// slot was taken concurrently.
	RescheduleAppointment(ctx context.Context, id, newSlotID uuid.UUID, now time.Time) (*Appointment, error)

	// UpdateAppointmentStatus is a compare-and-set: the update applies
	// only when the current status is one of froms.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, froms ...AppointmentStatus) (*Appointment, error)

	MarkPaymentFailed(ctx context.Context, appointmentID uuid.UUID, reason string, now time.Time) error
	MarkPaymentRefunded(ctx context.Context, appointmentID uuid.UUID, amountCents int64, reason string, now time.Time) error

	// Slot generation and maintenance.
	DatesWithSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error)
	InsertSlots(ctx context.Context, slots []Slot) (int, error)
	DeleteAvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error)
	ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, status *SlotStatus) ([]Slot, error)
	UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error)

	// Reminder sweep.
	FindDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error)
	MarkReminderSent(ctx context.Context, appointmentID uuid.UUID) error

	// Event logging.
	InsertEvent(ctx context.Context, ev EventLog) error
}
