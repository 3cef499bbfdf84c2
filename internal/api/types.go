package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/medibook/booking/internal/booking"
)

type CreateAppointmentRequest struct {
	PatientID string  `json:"patient_id"`
	SlotID    string  `json:"slot_id"`
	Reason    *string `json:"reason,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason *string `json:"reason,omitempty"`
}

type RescheduleAppointmentRequest struct {
	NewSlotID string `json:"new_slot_id"`
}

type GenerateSlotsRequest struct {
	StartDate string `json:"start_date"` // YYYY-MM-DD
	EndDate   string `json:"end_date"`   // YYYY-MM-DD
}

type BlockSlotRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// PaymentWebhookRequest is the settlement outcome reported by the
// payment gateway collaborator.
type PaymentWebhookRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"` // success | failure
	FailureReason string `json:"failure_reason,omitempty"`
}

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	Number        string     `json:"number"`
	PatientID     uuid.UUID  `json:"patient_id"`
	DoctorID      uuid.UUID  `json:"doctor_id"`
	SlotID        uuid.UUID  `json:"slot_id"`
	ScheduledAt   time.Time  `json:"scheduled_at"`
	Status        string     `json:"status"`
	PaymentStatus string     `json:"payment_status"`
	AmountCents   int64      `json:"amount_cents"`
	Reason        *string    `json:"reason,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

func toAppointmentResponse(a *booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		Number:        a.Number,
		PatientID:     a.PatientID,
		DoctorID:      a.DoctorID,
		SlotID:        a.SlotID,
		ScheduledAt:   a.ScheduledAt,
		Status:        string(a.Status),
		PaymentStatus: string(a.PaymentStatus),
		AmountCents:   a.AmountCents,
		Reason:        a.Reason,
		ConfirmedAt:   a.ConfirmedAt,
		CancelledAt:   a.CancelledAt,
	}
}

type SlotResponse struct {
	ID        uuid.UUID `json:"id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	Date      string    `json:"date"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

func toSlotResponse(s *booking.Slot) SlotResponse {
	return SlotResponse{
		ID:        s.ID,
		DoctorID:  s.DoctorID,
		Date:      s.Date.Format("2006-01-02"),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Status:    string(s.Status),
	}
}

type GenerateSlotsResponse struct {
	Created int `json:"created"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
