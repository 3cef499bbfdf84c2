package booking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeRepo is an in-memory Repository with the same transition rules
// the SQL implementation enforces, guarded by one mutex so the
// concurrency tests exercise real contention.
type fakeRepo struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]*Patient
	doctors      map[uuid.UUID]*Doctor
	slots        map[uuid.UUID]*Slot
	appointments map[uuid.UUID]*Appointment
	payments     map[uuid.UUID]*Payment // keyed by appointment ID
	events       []EventLog
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		patients:     make(map[uuid.UUID]*Patient),
		doctors:      make(map[uuid.UUID]*Doctor),
		slots:        make(map[uuid.UUID]*Slot),
		appointments: make(map[uuid.UUID]*Appointment),
		payments:     make(map[uuid.UUID]*Payment),
	}
}

func (r *fakeRepo) addPatient(p Patient) *Patient {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = &p
	return &p
}

func (r *fakeRepo) addDoctor(d Doctor) *Doctor {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[d.ID] = &d
	return &d
}

func (r *fakeRepo) addSlot(s Slot) *Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[s.ID] = &s
	return &s
}

func (r *fakeRepo) slotStatus(id uuid.UUID) SlotStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.slots[id].Status
}

func (r *fakeRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeRepo) GetSlotByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *fakeRepo) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	detail := &AppointmentDetail{Appointment: *appt}
	if s, ok := r.slots[appt.SlotID]; ok {
		cp := *s
		detail.Slot = &cp
	}
	if p, ok := r.patients[appt.PatientID]; ok {
		cp := *p
		detail.Patient = &cp
	}
	if d, ok := r.doctors[appt.DoctorID]; ok {
		cp := *d
		detail.Doctor = &cp
	}
	return detail, nil
}

func (r *fakeRepo) GetPaymentByAppointment(_ context.Context, appointmentID uuid.UUID) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[appointmentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range r.appointments {
		if a.PatientID == patientID {
			out = append(out, AppointmentDetail{Appointment: *a})
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) activeAppointmentOnSlot(slotID uuid.UUID) bool {
	for _, a := range r.appointments {
		if a.SlotID == slotID && a.Status.Active() {
			return true
		}
	}
	return false
}

func (r *fakeRepo) CreatePendingAppointment(_ context.Context, p CreateParams) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[p.SlotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if slot.Status != SlotAvailable || r.activeAppointmentOnSlot(p.SlotID) {
		return nil, ErrSlotUnavailable
	}

	appt := &Appointment{
		ID:            uuid.New(),
		Number:        NewAppointmentNumber(),
		PatientID:     p.PatientID,
		DoctorID:      slot.DoctorID,
		SlotID:        p.SlotID,
		ScheduledAt:   slot.StartTime,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		AmountCents:   p.AmountCents,
		Reason:        p.Reason,
		CreatedAt:     p.Now,
		UpdatedAt:     p.Now,
	}
	r.appointments[appt.ID] = appt

	r.payments[appt.ID] = &Payment{
		ID:            uuid.New(),
		TransactionID: NewTransactionID(),
		AppointmentID: appt.ID,
		AmountCents:   p.AmountCents,
		Currency:      p.Currency,
		Method:        p.Method,
		Status:        TxnPending,
		CreatedAt:     p.Now,
	}

	cp := *appt
	return &cp, nil
}

func (r *fakeRepo) ConfirmAppointment(_ context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if appt.Status != StatusPending && appt.Status != StatusRescheduled {
		return nil, ErrInvalidTransition
	}

	appt.Status = StatusConfirmed
	appt.PaymentStatus = PaymentPaid
	appt.ConfirmedAt = &now
	appt.UpdatedAt = now

	if pay, ok := r.payments[id]; ok {
		pay.Status = TxnCompleted
		pay.PaidAt = &now
	}
	if slot, ok := r.slots[appt.SlotID]; ok {
		slot.Status = SlotBooked
	}

	cp := *appt
	return &cp, nil
}

func (r *fakeRepo) CancelAppointment(_ context.Context, id uuid.UUID, reason *string, now time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if !appt.Status.Open() {
		return nil, ErrInvalidTransition
	}

	appt.Status = StatusCancelled
	appt.CancelledAt = &now
	appt.CancellationReason = reason
	appt.UpdatedAt = now

	if slot, ok := r.slots[appt.SlotID]; ok && slot.Status == SlotBooked {
		slot.Status = SlotAvailable
	}

	cp := *appt
	return &cp, nil
}

func (r *fakeRepo) RescheduleAppointment(_ context.Context, id, newSlotID uuid.UUID, now time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if !appt.Status.Open() {
		return nil, ErrInvalidTransition
	}

	newSlot, ok := r.slots[newSlotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if newSlot.DoctorID != appt.DoctorID || newSlot.Status != SlotAvailable || r.activeAppointmentOnSlot(newSlotID) {
		return nil, ErrSlotUnavailable
	}

	if oldSlot, ok := r.slots[appt.SlotID]; ok && oldSlot.Status == SlotBooked {
		oldSlot.Status = SlotAvailable
	}

	appt.SlotID = newSlotID
	appt.ScheduledAt = newSlot.StartTime
	appt.Status = StatusRescheduled
	appt.ReminderSent = false
	appt.UpdatedAt = now

	if appt.PaymentStatus == PaymentPaid {
		newSlot.Status = SlotBooked
	}

	cp := *appt
	return &cp, nil
}

func (r *fakeRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, to AppointmentStatus, froms ...AppointmentStatus) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	matched := false
	for _, f := range froms {
		if appt.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrAppointmentNotFound
	}

	appt.Status = to
	cp := *appt
	return &cp, nil
}

func (r *fakeRepo) MarkPaymentFailed(_ context.Context, appointmentID uuid.UUID, reason string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pay, ok := r.payments[appointmentID]
	if !ok {
		return ErrPaymentNotFound
	}
	pay.Status = TxnFailed
	pay.FailureReason = &reason

	if appt, ok := r.appointments[appointmentID]; ok {
		appt.PaymentStatus = PaymentFailed
		appt.UpdatedAt = now
	}
	return nil
}

func (r *fakeRepo) MarkPaymentRefunded(_ context.Context, appointmentID uuid.UUID, amountCents int64, reason string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	pay, ok := r.payments[appointmentID]
	if !ok {
		return ErrPaymentNotFound
	}
	pay.Status = TxnRefunded
	pay.RefundAmountCents = &amountCents
	pay.RefundReason = &reason
	pay.RefundedAt = &now

	if appt, ok := r.appointments[appointmentID]; ok {
		appt.PaymentStatus = PaymentRefunded
		appt.UpdatedAt = now
	}
	return nil
}

func (r *fakeRepo) DatesWithSlots(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]time.Time)
	for _, s := range r.slots {
		if s.DoctorID == doctorID && !s.Date.Before(from) && !s.Date.After(to) {
			seen[s.Date.Format("2006-01-02")] = s.Date
		}
	}
	var out []time.Time
	for _, d := range seen {
		out = append(out, d)
	}
	return out, nil
}

func (r *fakeRepo) InsertSlots(_ context.Context, slots []Slot) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	for _, s := range slots {
		dup := false
		for _, existing := range r.slots {
			if existing.DoctorID == s.DoctorID && existing.StartTime.Equal(s.StartTime) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		cp := s
		r.slots[s.ID] = &cp
		inserted++
	}
	return inserted, nil
}

func (r *fakeRepo) DeleteAvailableSlots(_ context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for id, s := range r.slots {
		if s.DoctorID == doctorID && s.Status == SlotAvailable && !s.Date.Before(from) && !s.Date.After(to) {
			delete(r.slots, id)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeRepo) ListSlots(_ context.Context, doctorID uuid.UUID, from, to time.Time, status *SlotStatus) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Slot
	for _, s := range r.slots {
		if s.DoctorID != doctorID || s.Date.Before(from) || s.Date.After(to) {
			continue
		}
		if status != nil && s.Status != *status {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *fakeRepo) UpdateSlotStatus(_ context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, ok := r.slots[id]
	if !ok || slot.Status != from {
		return nil, ErrSlotNotFound
	}
	slot.Status = to
	cp := *slot
	return &cp, nil
}

func (r *fakeRepo) FindDueReminders(_ context.Context, from, to time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.ReminderSent {
			continue
		}
		if a.Status != StatusConfirmed && a.Status != StatusRescheduled {
			continue
		}
		if a.ScheduledAt.After(from) && !a.ScheduledAt.After(to) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkReminderSent(_ context.Context, appointmentID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	appt, ok := r.appointments[appointmentID]
	if !ok {
		return ErrAppointmentNotFound
	}
	appt.ReminderSent = true
	return nil
}

func (r *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}
