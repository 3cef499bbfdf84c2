package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medibook/booking/internal/schedule"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	var workingDays int16
	var dayStart, dayEnd int

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialty,
		&workingDays,
		&dayStart,
		&dayEnd,
		&d.SlotMinutes,
		&d.FeeCents,
		&d.Currency,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	d.WorkingDays = schedule.WeekdaySet(workingDays)
	d.DayStart = schedule.MinuteOfDay(dayStart)
	d.DayEnd = schedule.MinuteOfDay(dayEnd)
	return &d, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotID,
		&a.ScheduledAt,
		&a.Status,
		&a.PaymentStatus,
		&a.AmountCents,
		&a.Reason,
		&a.ConfirmedAt,
		&a.CancelledAt,
		&a.CancellationReason,
		&a.ReminderSent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.TransactionID,
		&p.AppointmentID,
		&p.AmountCents,
		&p.Currency,
		&p.Method,
		&p.Status,
		&p.GatewayTransactionID,
		&p.FailureReason,
		&p.RefundAmountCents,
		&p.RefundReason,
		&p.PaidAt,
		&p.RefundedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

const patientColumns = "id, name, email, phone, created_at, updated_at"
const doctorColumns = "id, name, specialty, working_days, day_start_minutes, day_end_minutes, slot_minutes, fee_cents, currency, created_at, updated_at"
const slotColumns = "id, doctor_id, date, start_time, end_time, status, created_at, updated_at"
const appointmentColumns = "id, number, patient_id, doctor_id, slot_id, scheduled_at, status, payment_status, amount_cents, reason, confirmed_at, cancelled_at, cancellation_reason, reminder_sent, created_at, updated_at"
const paymentColumns = "id, transaction_id, appointment_id, amount_cents, currency, method, status, gateway_transaction_id, failure_reason, refund_amount_cents, refund_reason, paid_at, refunded_at, created_at, updated_at"

// Reads

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+doctorColumns+` FROM doctors WHERE id = $1`, id)
	return scanDoctor(row)
}

func (r *PgRepository) GetSlotByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1`, id)
	return scanSlot(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetPaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE appointment_id = $1 ORDER BY created_at DESC LIMIT 1`, appointmentID)
	return scanPayment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	appt, err := r.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &AppointmentDetail{Appointment: *appt}

	if slot, err := r.GetSlotByID(ctx, appt.SlotID); err == nil {
		detail.Slot = slot
	} else if !errors.Is(err, ErrSlotNotFound) {
		return nil, err
	}
	if patient, err := r.GetPatientByID(ctx, appt.PatientID); err == nil {
		detail.Patient = patient
	} else if !errors.Is(err, ErrPatientNotFound) {
		return nil, err
	}
	if doctor, err := r.GetDoctorByID(ctx, appt.DoctorID); err == nil {
		detail.Doctor = doctor
	} else if !errors.Is(err, ErrDoctorNotFound) {
		return nil, err
	}

	return detail, nil
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]AppointmentDetail, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, AppointmentDetail{Appointment: *a})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		if doctor, err := r.GetDoctorByID(ctx, result[i].DoctorID); err == nil {
			result[i].Doctor = doctor
		}
	}

	return result, nil
}

// Booking transactions

func (r *PgRepository) CreatePendingAppointment(ctx context.Context, p CreateParams) (*Appointment, error) {
	var created *Appointment

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		slot, err := lockSlot(ctx, tx, p.SlotID)
		if err != nil {
			return err
		}
		if slot.Status != SlotAvailable {
			return ErrSlotUnavailable
		}

		var existing int
		err = tx.QueryRow(ctx, `
			SELECT count(*) FROM appointments
			WHERE slot_id = $1 AND status <> 'cancelled'
		`, p.SlotID).Scan(&existing)
		if err != nil {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if existing > 0 {
			return ErrSlotUnavailable
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO appointments
				(id, number, patient_id, doctor_id, slot_id, scheduled_at,
				 status, payment_status, amount_cents, reason, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending', 'pending', $7, $8, $9, $9)
			RETURNING `+appointmentColumns+`
		`, uuid.New(), NewAppointmentNumber(), p.PatientID, slot.DoctorID, p.SlotID,
			slot.StartTime, p.AmountCents, p.Reason, p.Now)

		appt, err := scanAppointment(row)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrSlotUnavailable
			}
			return fmt.Errorf("insert appointment: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO payments
				(id, transaction_id, appointment_id, amount_cents, currency, method,
				 status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'pending', $7, $7)
		`, uuid.New(), NewTransactionID(), appt.ID, p.AmountCents, p.Currency, p.Method, p.Now)
		if err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *PgRepository) ConfirmAppointment(ctx context.Context, id uuid.UUID, now time.Time) (*Appointment, error) {
	var confirmed *Appointment

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = 'confirmed',
			    payment_status = 'paid',
			    confirmed_at = $2,
			    updated_at = $2
			WHERE id = $1
			  AND status IN ('pending', 'rescheduled')
			RETURNING `+appointmentColumns+`
		`, id, now)

		appt, err := scanAppointment(row)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return confirmFailureKind(ctx, tx, id)
			}
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE payments
			SET status = 'completed', paid_at = $2, updated_at = $2
			WHERE appointment_id = $1 AND status IN ('pending', 'processing')
		`, appt.ID, now)
		if err != nil {
			return fmt.Errorf("mark payment completed: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE slots SET status = 'booked', updated_at = $2 WHERE id = $1
		`, appt.SlotID, now)
		if err != nil {
			return fmt.Errorf("mark slot booked: %w", err)
		}

		confirmed = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return confirmed, nil
}

func confirmFailureKind(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrInvalidTransition
	}
	return ErrAppointmentNotFound
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID, reason *string, now time.Time) (*Appointment, error) {
	var cancelled *Appointment

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET status = 'cancelled',
			    cancelled_at = $3,
			    cancellation_reason = $2,
			    updated_at = $3
			WHERE id = $1
			  AND status IN ('pending', 'confirmed', 'rescheduled')
			RETURNING `+appointmentColumns+`
		`, id, reason, now)

		appt, err := scanAppointment(row)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return confirmFailureKind(ctx, tx, id)
			}
			return err
		}

		// A pending appointment's slot is still `available`; only a
		// booked slot needs releasing.
		_, err = tx.Exec(ctx, `
			UPDATE slots SET status = 'available', updated_at = $2
			WHERE id = $1 AND status = 'booked'
		`, appt.SlotID, now)
		if err != nil {
			return fmt.Errorf("release slot: %w", err)
		}

		cancelled = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	return cancelled, nil
}

func (r *PgRepository) RescheduleAppointment(ctx context.Context, id, newSlotID uuid.UUID, now time.Time) (*Appointment, error) {
	var moved *Appointment

	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1 FOR UPDATE`, id)
		appt, err := scanAppointment(row)
		if err != nil {
			return err
		}
		if !appt.Status.Open() {
			return ErrInvalidTransition
		}

		newSlot, err := lockSlot(ctx, tx, newSlotID)
		if err != nil {
			return err
		}
		if newSlot.DoctorID != appt.DoctorID || newSlot.Status != SlotAvailable {
			return ErrSlotUnavailable
		}

		var active int
		err = tx.QueryRow(ctx, `
			SELECT count(*) FROM appointments
			WHERE slot_id = $1 AND status <> 'cancelled'
		`, newSlotID).Scan(&active)
		if err != nil {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if active > 0 {
			return ErrSlotUnavailable
		}

		_, err = tx.Exec(ctx, `
			UPDATE slots SET status = 'available', updated_at = $2
			WHERE id = $1 AND status = 'booked'
		`, appt.SlotID, now)
		if err != nil {
			return fmt.Errorf("release old slot: %w", err)
		}

		row = tx.QueryRow(ctx, `
			UPDATE appointments
			SET slot_id = $2,
			    scheduled_at = $3,
			    status = 'rescheduled',
			    reminder_sent = false,
			    updated_at = $4
			WHERE id = $1
			RETURNING `+appointmentColumns+`
		`, id, newSlotID, newSlot.StartTime, now)

		updated, err := scanAppointment(row)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrSlotUnavailable
			}
			return fmt.Errorf("move appointment: %w", err)
		}

		// A paid or confirmed booking keeps a hard claim on its slot.
		if appt.Status == StatusConfirmed || appt.PaymentStatus == PaymentPaid {
			_, err = tx.Exec(ctx, `
				UPDATE slots SET status = 'booked', updated_at = $2 WHERE id = $1
			`, newSlotID, now)
			if err != nil {
				return fmt.Errorf("claim new slot: %w", err)
			}
		}

		moved = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	return moved, nil
}

func lockSlot(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Slot, error) {
	row := tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`, id)
	return scanSlot(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus, froms ...AppointmentStatus) (*Appointment, error) {
	fromList := make([]string, len(froms))
	for i, f := range froms {
		fromList[i] = string(f)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+appointmentColumns+`
	`, id, to, fromList)

	return scanAppointment(row)
}

func (r *PgRepository) MarkPaymentFailed(ctx context.Context, appointmentID uuid.UUID, reason string, now time.Time) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE payments
			SET status = 'failed', failure_reason = $2, updated_at = $3
			WHERE appointment_id = $1
		`, appointmentID, reason, now)
		if err != nil {
			return fmt.Errorf("mark payment failed: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE appointments SET payment_status = 'failed', updated_at = $2 WHERE id = $1
		`, appointmentID, now)
		if err != nil {
			return fmt.Errorf("mark appointment payment failed: %w", err)
		}
		return nil
	})
}

func (r *PgRepository) MarkPaymentRefunded(ctx context.Context, appointmentID uuid.UUID, amountCents int64, reason string, now time.Time) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE payments
			SET status = 'refunded',
			    refund_amount_cents = $2,
			    refund_reason = NULLIF($3, ''),
			    refunded_at = $4,
			    updated_at = $4
			WHERE appointment_id = $1
		`, appointmentID, amountCents, reason, now)
		if err != nil {
			return fmt.Errorf("mark payment refunded: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE appointments SET payment_status = 'refunded', updated_at = $2 WHERE id = $1
		`, appointmentID, now)
		if err != nil {
			return fmt.Errorf("mark appointment refunded: %w", err)
		}
		return nil
	})
}

// Slot generation and maintenance

func (r *PgRepository) DatesWithSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT date FROM slots
		WHERE doctor_id = $1 AND date BETWEEN $2 AND $3
	`, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}

func (r *PgRepository) InsertSlots(ctx context.Context, slots []Slot) (int, error) {
	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(`
			INSERT INTO slots (id, doctor_id, date, start_time, end_time, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
			ON CONFLICT (doctor_id, date, start_time) DO NOTHING
		`, s.ID, s.DoctorID, s.Date, s.StartTime, s.EndTime, s.Status)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range slots {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("insert slot: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *PgRepository) DeleteAvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slots
		WHERE doctor_id = $1
		  AND date BETWEEN $2 AND $3
		  AND status = 'available'
	`, doctorID, from, to)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) ListSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time, status *SlotStatus) ([]Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM slots WHERE doctor_id = $1 AND date BETWEEN $2 AND $3`
	args := []any{doctorID, from, to}
	if status != nil {
		query += ` AND status = $4`
		args = append(args, *status)
	}
	query += ` ORDER BY date, start_time`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateSlotStatus(ctx context.Context, id uuid.UUID, from, to SlotStatus) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE slots
		SET status = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
		RETURNING `+slotColumns+`
	`, id, from, to)

	return scanSlot(row)
}

// Reminders

func (r *PgRepository) FindDueReminders(ctx context.Context, from, to time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status IN ('confirmed', 'rescheduled')
		  AND reminder_sent = false
		  AND scheduled_at > $1
		  AND scheduled_at <= $2
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) MarkReminderSent(ctx context.Context, appointmentID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments SET reminder_sent = true, updated_at = now() WHERE id = $1
	`, appointmentID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
