package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medibook/booking/internal/booking"
	redisclient "github.com/medibook/booking/internal/redis"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// actorFromRequest resolves the caller identity the out-of-scope auth
// layer would normally provide. X-Actor-ID carries the user id,
// X-Actor-Role one of patient|doctor|admin (default patient).
func actorFromRequest(r *http.Request) (booking.Actor, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Actor-ID"))
	if err != nil {
		return booking.Actor{}, false
	}

	role := booking.Role(r.Header.Get("X-Actor-Role"))
	switch role {
	case "":
		role = booking.RolePatient
	case booking.RolePatient, booking.RoleDoctor, booking.RoleAdmin:
	default:
		return booking.Actor{}, false
	}

	return booking.Actor{ID: id, Role: role}, true
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}

func dateRangeFromQuery(r *http.Request, horizonDays int) (time.Time, time.Time, error) {
	now := time.Now()
	from := now
	to := now.AddDate(0, 0, horizonDays)

	if v := r.URL.Query().Get("start_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if v := r.URL.Query().Get("end_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	return from, to, nil
}

func createAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		appt, err := svc.Create(r.Context(), patientID, slotID, req.Reason)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Confirm(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-ID must be a valid UUID")
			return
		}

		var req CancelAppointmentRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		appt, err := svc.Cancel(r.Context(), id, req.Reason, actor)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-ID must be a valid UUID")
			return
		}

		var req RescheduleAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		newSlotID, err := uuid.Parse(req.NewSlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "new_slot_id must be a valid UUID")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, newSlotID, actor)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func finishAppointmentHandler(svc BookingService, noShow bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-ID must be a valid UUID")
			return
		}

		var appt *booking.Appointment
		if noShow {
			appt, err = svc.MarkNoShow(r.Context(), id, actor)
		} else {
			appt, err = svc.Complete(r.Context(), id, actor)
		}
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(&detail.Appointment))
	}
}

func listAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(r.URL.Query().Get("patient_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		details, err := svc.ListAppointmentsByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(details))
		for i := range details {
			out = append(out, toAppointmentResponse(&details[i].Appointment))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func availableSlotsHandler(svc BookingService, horizonDays int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		from, to, err := dateRangeFromQuery(r, horizonDays)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "dates must be YYYY-MM-DD")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, from, to)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		out := make([]SlotResponse, 0, len(slots))
		for i := range slots {
			out = append(out, toSlotResponse(&slots[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func generateSlotsHandler(svc BookingService, regenerate bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		var req GenerateSlotsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		from, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "start_date must be YYYY-MM-DD")
			return
		}
		to, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "end_date must be YYYY-MM-DD")
			return
		}
		if to.Before(from) {
			writeError(w, http.StatusBadRequest, "invalid_date_range", "end_date must not precede start_date")
			return
		}

		var created int
		if regenerate {
			created, err = svc.RegenerateSlots(r.Context(), doctorID, from, to)
		} else {
			created, err = svc.GenerateSlots(r.Context(), doctorID, from, to)
		}
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, GenerateSlotsResponse{Created: created})
	}
}

func blockSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-ID must be a valid UUID")
			return
		}

		var req BlockSlotRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		slot, err := svc.BlockSlot(r.Context(), slotID, req.Reason, actor)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func unblockSlotHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slotID, err := uuidParam(r, "id")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "id must be a valid UUID")
			return
		}

		actor, ok := actorFromRequest(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_actor", "X-Actor-ID must be a valid UUID")
			return
		}

		slot, err := svc.UnblockSlot(r.Context(), slotID, actor)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toSlotResponse(slot))
	}
}

func paymentWebhookHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PaymentWebhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appointmentID, err := uuid.Parse(req.AppointmentID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "appointment_id must be a valid UUID")
			return
		}

		switch req.Status {
		case "success":
			appt, err := svc.Confirm(r.Context(), appointmentID)
			if err != nil {
				handleBookingError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
		case "failure":
			if err := svc.RecordPaymentFailure(r.Context(), appointmentID, req.FailureReason); err != nil {
				handleBookingError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
		default:
			writeError(w, http.StatusBadRequest, "invalid_status", "status must be success or failure")
		}
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotBeingBooked), errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, booking.ErrCancellationWindowClosed):
		writeError(w, http.StatusUnprocessableEntity, "cancellation_window_closed", err.Error())
	case errors.Is(err, booking.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access_denied", err.Error())
	case errors.Is(err, booking.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
