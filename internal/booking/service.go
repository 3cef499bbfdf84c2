package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medibook/booking/internal/config"
	redisclient "github.com/medibook/booking/internal/redis"
	"github.com/medibook/booking/internal/schedule"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventPaymentFailed          = "PAYMENT_FAILED"
	EventSlotsGenerated         = "SLOTS_GENERATED"
	EventSlotBlocked            = "SLOT_BLOCKED"
	EventSlotUnblocked          = "SLOT_UNBLOCKED"
)

var (
	// ErrSlotUnavailable is what every loser of a claim race sees, and
	// what booking a blocked or already-booked slot returns.
	ErrSlotUnavailable = errors.New("slot is not available")

	// ErrSlotBeingBooked wraps ErrSlotUnavailable so callers that only
	// care about the broad kind can errors.Is against it.
	ErrSlotBeingBooked = fmt.Errorf("slot is currently being booked: %w", ErrSlotUnavailable)

	ErrCancellationWindowClosed = errors.New("cancellation window closed")
	ErrAccessDenied             = errors.New("access denied")
	ErrInvalidTransition        = errors.New("invalid status transition")
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	gateway  Gateway
	notifier Notifier
	clock    Clock
	cfg      config.Config
}

func NewService(repo Repository, locker redisclient.Locker, gateway Gateway, notifier Notifier, clock Clock, cfg config.Config) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		gateway:  gateway,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
	}
}

// Create tries to reserve a slot for a patient. A per-slot lock plus the
// repository's in-transaction re-check guarantee at most one
// non-cancelled appointment per slot; the slot itself stays `available`
// until payment settles, the pending row is the reservation.
func (s *Service) Create(ctx context.Context, patientID, slotID uuid.UUID, reason *string) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if slot.Status != SlotAvailable {
		return nil, ErrSlotUnavailable
	}

	doctor, err := s.repo.GetDoctorByID(ctx, slot.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		appt, err := s.repo.CreatePendingAppointment(lockCtx, CreateParams{
			PatientID:   patientID,
			SlotID:      slotID,
			Reason:      reason,
			AmountCents: doctor.FeeCents,
			Currency:    doctor.Currency,
			Method:      s.cfg.PaymentMethod,
			Now:         s.clock.Now(),
		})
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logEvent(ctx, &created.ID, EventAppointmentCreated, map[string]any{
		"number":     created.Number,
		"slot_id":    slotID.String(),
		"patient_id": patientID.String(),
		"amount":     created.AmountCents,
	})
	s.notifier.AppointmentCreated(ctx, *created)

	return created, nil
}

// Confirm is the payment settlement hook's success path. Confirming an
// already-confirmed appointment is a no-op.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	switch appt.Status {
	case StatusConfirmed:
		return appt, nil
	case StatusPending, StatusRescheduled:
		// confirmable
	default:
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.ConfirmAppointment(ctx, id, s.clock.Now())
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			// Lost a race against another confirm; re-read and treat a
			// concurrent confirmation as our no-op.
			if current, readErr := s.repo.GetAppointmentByID(ctx, id); readErr == nil && current.Status == StatusConfirmed {
				return current, nil
			}
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("confirm appointment: %w", err)
	}

	s.logEvent(ctx, &updated.ID, EventAppointmentConfirmed, map[string]any{"number": updated.Number})
	s.notifier.AppointmentConfirmed(ctx, *updated)

	return updated, nil
}

// RecordPaymentFailure is the settlement hook's failure path: the
// appointment stays pending, only the payment side is marked failed.
func (s *Service) RecordPaymentFailure(ctx context.Context, id uuid.UUID, reason string) error {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}

	if err := s.repo.MarkPaymentFailed(ctx, appt.ID, reason, s.clock.Now()); err != nil {
		return fmt.Errorf("mark payment failed: %w", err)
	}

	s.logEvent(ctx, &appt.ID, EventPaymentFailed, map[string]any{"reason": reason})
	return nil
}

// Cancel releases the appointment's slot and, when the appointment was
// paid, asks the gateway for the policy refund. Patients are bound by
// the cancellation window; doctors and admins are not.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason *string, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !actor.canActOn(appt) {
		return nil, ErrAccessDenied
	}
	if !appt.Status.Open() {
		return nil, ErrInvalidTransition
	}

	now := s.clock.Now()
	hoursUntil := appt.ScheduledAt.Sub(now).Hours()
	if actor.boundByWindow() && hoursUntil < s.cfg.CancellationWindow.Hours() {
		return nil, ErrCancellationWindowClosed
	}

	wasPaid := appt.PaymentStatus == PaymentPaid

	updated, err := s.repo.CancelAppointment(ctx, id, reason, now)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	if wasPaid {
		s.refundAfterCancel(ctx, updated, hoursUntil)
	}

	s.logEvent(ctx, &updated.ID, EventAppointmentCancelled, map[string]any{
		"number":   updated.Number,
		"actor":    string(actor.Role),
		"was_paid": wasPaid,
	})
	s.notifier.AppointmentCancelled(ctx, *updated, reason)

	return updated, nil
}

func (s *Service) refundAfterCancel(ctx context.Context, appt *Appointment, hoursUntil float64) {
	refundCents, note := RefundFor(appt.AmountCents, hoursUntil)

	pay, err := s.repo.GetPaymentByAppointment(ctx, appt.ID)
	if err != nil {
		log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("load payment for refund")
		return
	}

	if err := s.gateway.Refund(ctx, pay.TransactionID, refundCents, note); err != nil {
		// Gateway failures never undo the cancellation; the payment row
		// keeps its state for a later retry.
		log.Error().Err(err).Str("transaction_id", pay.TransactionID).Msg("gateway refund failed")
		return
	}

	if err := s.repo.MarkPaymentRefunded(ctx, appt.ID, refundCents, note, s.clock.Now()); err != nil {
		log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("record refund")
	}
}

// Reschedule moves an open appointment to a new slot of the same
// doctor, releasing the old slot in the same transaction.
func (s *Service) Reschedule(ctx context.Context, id, newSlotID uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !actor.canActOn(appt) {
		return nil, ErrAccessDenied
	}
	if !appt.Status.Open() {
		return nil, ErrInvalidTransition
	}

	now := s.clock.Now()
	if actor.boundByWindow() && appt.ScheduledAt.Sub(now).Hours() < s.cfg.CancellationWindow.Hours() {
		return nil, ErrCancellationWindowClosed
	}

	newSlot, err := s.repo.GetSlotByID(ctx, newSlotID)
	if err != nil {
		return nil, fmt.Errorf("load new slot: %w", err)
	}
	if newSlot.DoctorID != appt.DoctorID || newSlot.Status != SlotAvailable {
		return nil, ErrSlotUnavailable
	}

	oldStart := appt.ScheduledAt

	var updated *Appointment
	err = s.locker.WithSlotLock(ctx, newSlotID, func(lockCtx context.Context) error {
		moved, err := s.repo.RescheduleAppointment(lockCtx, id, newSlotID, now)
		if err != nil {
			return err
		}
		updated = moved
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("reschedule appointment: %w", err)
	}

	s.logEvent(ctx, &updated.ID, EventAppointmentRescheduled, map[string]any{
		"number":      updated.Number,
		"old_start":   oldStart,
		"new_slot_id": newSlotID.String(),
	})
	s.notifier.AppointmentRescheduled(ctx, *updated, oldStart)

	return updated, nil
}

// Complete is a doctor-invoked terminal transition. The slot stays
// booked as a historical record.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.finish(ctx, id, actor, StatusCompleted, EventAppointmentCompleted)
}

// MarkNoShow records that the patient never turned up.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.finish(ctx, id, actor, StatusNoShow, EventAppointmentNoShow)
}

func (s *Service) finish(ctx context.Context, id uuid.UUID, actor Actor, to AppointmentStatus, event string) (*Appointment, error) {
	if actor.Role == RolePatient {
		return nil, ErrAccessDenied
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	if !actor.canActOn(appt) {
		return nil, ErrAccessDenied
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, to, StatusConfirmed, StatusRescheduled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.logEvent(ctx, &updated.ID, event, map[string]any{"number": updated.Number})
	return updated, nil
}

// GenerateSlots expands the doctor's weekly schedule over [from, to]
// and inserts slots for the dates that have none yet. Dates with any
// existing row are skipped entirely; duplicate-insert races are
// absorbed by the slots unique index.
func (s *Service) GenerateSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error) {
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return 0, fmt.Errorf("load doctor: %w", err)
	}

	weekly := doctor.Weekly()
	if err := weekly.Validate(); err != nil {
		return 0, fmt.Errorf("doctor schedule: %w", err)
	}

	existing, err := s.repo.DatesWithSlots(ctx, doctorID, from, to)
	if err != nil {
		return 0, fmt.Errorf("list generated dates: %w", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, d := range existing {
		seen[d.Format("2006-01-02")] = true
	}

	var slots []Slot
	for _, date := range schedule.DatesBetween(from, to) {
		if seen[date.Format("2006-01-02")] {
			continue
		}
		for _, iv := range schedule.SlotTimes(weekly, date) {
			slots = append(slots, Slot{
				ID:        uuid.New(),
				DoctorID:  doctorID,
				Date:      date,
				StartTime: iv.Start,
				EndTime:   iv.End,
				Status:    SlotAvailable,
			})
		}
	}

	if len(slots) == 0 {
		return 0, nil
	}

	inserted, err := s.repo.InsertSlots(ctx, slots)
	if err != nil {
		return 0, fmt.Errorf("insert slots: %w", err)
	}

	s.logEvent(ctx, nil, EventSlotsGenerated, map[string]any{
		"doctor_id": doctorID.String(),
		"from":      from.Format("2006-01-02"),
		"to":        to.Format("2006-01-02"),
		"count":     inserted,
	})

	return inserted, nil
}

// RegenerateSlots is the explicit destructive maintenance path for
// schedule changes: it drops the still-available slots in the range and
// generates afresh. Booked and blocked slots are untouched, so their
// dates keep being skipped by generation.
func (s *Service) RegenerateSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error) {
	deleted, err := s.repo.DeleteAvailableSlots(ctx, doctorID, from, to)
	if err != nil {
		return 0, fmt.Errorf("delete available slots: %w", err)
	}
	log.Info().Str("doctor_id", doctorID.String()).Int64("deleted", deleted).Msg("regenerating slots")

	return s.GenerateSlots(ctx, doctorID, from, to)
}

// AvailableSlots backs the patient-facing listing: it fills in missing
// dates first, then returns what is bookable.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Slot, error) {
	if _, err := s.GenerateSlots(ctx, doctorID, from, to); err != nil {
		return nil, err
	}

	status := SlotAvailable
	slots, err := s.repo.ListSlots(ctx, doctorID, from, to, &status)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

// BlockSlot takes a slot off the market by doctor action. Booked slots
// cannot be blocked.
func (s *Service) BlockSlot(ctx context.Context, slotID uuid.UUID, reason *string, actor Actor) (*Slot, error) {
	slot, err := s.slotForDoctorAction(ctx, slotID, actor)
	if err != nil {
		return nil, err
	}
	if slot.Status == SlotBooked {
		return nil, ErrSlotUnavailable
	}

	updated, err := s.repo.UpdateSlotStatus(ctx, slotID, SlotAvailable, SlotBlocked)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrSlotUnavailable
		}
		return nil, fmt.Errorf("block slot: %w", err)
	}

	payload := map[string]any{"slot_id": slotID.String()}
	if reason != nil {
		payload["reason"] = *reason
	}
	s.logEvent(ctx, nil, EventSlotBlocked, payload)

	return updated, nil
}

func (s *Service) UnblockSlot(ctx context.Context, slotID uuid.UUID, actor Actor) (*Slot, error) {
	slot, err := s.slotForDoctorAction(ctx, slotID, actor)
	if err != nil {
		return nil, err
	}
	if slot.Status != SlotBlocked {
		return nil, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateSlotStatus(ctx, slotID, SlotBlocked, SlotAvailable)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("unblock slot: %w", err)
	}

	s.logEvent(ctx, nil, EventSlotUnblocked, map[string]any{"slot_id": slotID.String()})

	return updated, nil
}

func (s *Service) slotForDoctorAction(ctx context.Context, slotID uuid.UUID, actor Actor) (*Slot, error) {
	slot, err := s.repo.GetSlotByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}

	switch actor.Role {
	case RoleAdmin:
	case RoleDoctor:
		if actor.ID != slot.DoctorID {
			return nil, ErrAccessDenied
		}
	default:
		return nil, ErrAccessDenied
	}

	return slot, nil
}

// SendDueReminders marks and notifies confirmed appointments starting
// within the reminder window. Called periodically by the worker.
func (s *Service) SendDueReminders(ctx context.Context) (int, error) {
	now := s.clock.Now()

	due, err := s.repo.FindDueReminders(ctx, now, now.Add(s.cfg.ReminderWindow))
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	sent := 0
	for _, appt := range due {
		if err := s.repo.MarkReminderSent(ctx, appt.ID); err != nil {
			log.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("mark reminder sent")
			continue
		}
		s.notifier.AppointmentReminder(ctx, appt)
		sent++
	}

	return sent, nil
}

// GetAppointment retrieves a fully hydrated appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

// ListAppointmentsByPatient retrieves appointments for a patient.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		Payload:       data,
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Error().Err(err).Str("event", eventType).Msg("insert event log")
	}
}
