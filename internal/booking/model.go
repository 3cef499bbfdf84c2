package booking

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"

	"github.com/medibook/booking/internal/schedule"
)

type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotBooked    SlotStatus = "booked"
	SlotBlocked   SlotStatus = "blocked"
)

type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusConfirmed   AppointmentStatus = "confirmed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusCompleted   AppointmentStatus = "completed"
	StatusNoShow      AppointmentStatus = "no_show"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// Active reports whether the status still holds a claim on a slot.
// Exactly the statuses outside {cancelled} that the partial unique
// index on appointments(slot_id) counts.
func (s AppointmentStatus) Active() bool {
	return s != StatusCancelled
}

// Open reports whether the appointment can still be cancelled or moved.
func (s AppointmentStatus) Open() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusRescheduled
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type TransactionStatus string

const (
	TxnPending    TransactionStatus = "pending"
	TxnProcessing TransactionStatus = "processing"
	TxnCompleted  TransactionStatus = "completed"
	TxnFailed     TransactionStatus = "failed"
	TxnCancelled  TransactionStatus = "cancelled"
	TxnRefunded   TransactionStatus = "refunded"
)

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	Phone     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Doctor carries the recurring weekly schedule the slot generator
// expands, alongside the consultation fee copied onto new appointments.
type Doctor struct {
	ID          uuid.UUID
	Name        string
	Specialty   *string
	WorkingDays schedule.WeekdaySet
	DayStart    schedule.MinuteOfDay
	DayEnd      schedule.MinuteOfDay
	SlotMinutes int
	FeeCents    int64
	Currency    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (d Doctor) Weekly() schedule.Weekly {
	return schedule.Weekly{
		Days:            d.WorkingDays,
		DayStart:        d.DayStart,
		DayEnd:          d.DayEnd,
		DurationMinutes: d.SlotMinutes,
	}
}

type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	StartTime time.Time
	EndTime   time.Time
	Status    SlotStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID                 uuid.UUID
	Number             string
	PatientID          uuid.UUID
	DoctorID           uuid.UUID
	SlotID             uuid.UUID
	ScheduledAt        time.Time // copy of the slot's start at booking time
	Status             AppointmentStatus
	PaymentStatus      PaymentStatus
	AmountCents        int64
	Reason             *string
	ConfirmedAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
	ReminderSent       bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Payment struct {
	ID                   uuid.UUID
	TransactionID        string
	AppointmentID        uuid.UUID
	AmountCents          int64
	Currency             string
	Method               string
	Status               TransactionStatus
	GatewayTransactionID *string
	FailureReason        *string
	RefundAmountCents    *int64
	RefundReason         *string
	PaidAt               *time.Time
	RefundedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

type AppointmentDetail struct {
	Appointment
	Slot    *Slot
	Patient *Patient
	Doctor  *Doctor
}

const referenceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomReference(prefix string, n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read on supported platforms never fails; fall back to a
		// uuid-derived suffix just in case.
		return prefix + uuid.NewString()[:n]
	}
	for i, b := range buf {
		buf[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}
	return prefix + string(buf)
}

// NewAppointmentNumber returns a human-readable booking reference,
// e.g. APT-7K2QX9BD.
func NewAppointmentNumber() string {
	return randomReference("APT-", 8)
}

// NewTransactionID returns a payment reference, e.g. TXN-4Q8ZL1N0PW.
func NewTransactionID() string {
	return randomReference("TXN-", 10)
}
