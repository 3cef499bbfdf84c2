package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medibook/booking/internal/booking"
)

// stubService returns canned values and records what it was called
// with, so the tests cover routing, decoding and error mapping only.
type stubService struct {
	appt    *booking.Appointment
	detail  *booking.AppointmentDetail
	slot    *booking.Slot
	slots   []booking.Slot
	details []booking.AppointmentDetail
	created int
	err     error

	lastActor  booking.Actor
	lastReason string
}

func (s *stubService) Create(_ context.Context, _, _ uuid.UUID, _ *string) (*booking.Appointment, error) {
	return s.appt, s.err
}

func (s *stubService) Confirm(_ context.Context, _ uuid.UUID) (*booking.Appointment, error) {
	return s.appt, s.err
}

func (s *stubService) RecordPaymentFailure(_ context.Context, _ uuid.UUID, reason string) error {
	s.lastReason = reason
	return s.err
}

func (s *stubService) Cancel(_ context.Context, _ uuid.UUID, _ *string, actor booking.Actor) (*booking.Appointment, error) {
	s.lastActor = actor
	return s.appt, s.err
}

func (s *stubService) Reschedule(_ context.Context, _, _ uuid.UUID, actor booking.Actor) (*booking.Appointment, error) {
	s.lastActor = actor
	return s.appt, s.err
}

func (s *stubService) Complete(_ context.Context, _ uuid.UUID, actor booking.Actor) (*booking.Appointment, error) {
	s.lastActor = actor
	return s.appt, s.err
}

func (s *stubService) MarkNoShow(_ context.Context, _ uuid.UUID, actor booking.Actor) (*booking.Appointment, error) {
	s.lastActor = actor
	return s.appt, s.err
}

func (s *stubService) GetAppointment(_ context.Context, _ uuid.UUID) (*booking.AppointmentDetail, error) {
	return s.detail, s.err
}

func (s *stubService) ListAppointmentsByPatient(_ context.Context, _ uuid.UUID, _, _ int) ([]booking.AppointmentDetail, error) {
	return s.details, s.err
}

func (s *stubService) GenerateSlots(_ context.Context, _ uuid.UUID, _, _ time.Time) (int, error) {
	return s.created, s.err
}

func (s *stubService) RegenerateSlots(_ context.Context, _ uuid.UUID, _, _ time.Time) (int, error) {
	return s.created, s.err
}

func (s *stubService) AvailableSlots(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]booking.Slot, error) {
	return s.slots, s.err
}

func (s *stubService) BlockSlot(_ context.Context, _ uuid.UUID, _ *string, actor booking.Actor) (*booking.Slot, error) {
	s.lastActor = actor
	return s.slot, s.err
}

func (s *stubService) UnblockSlot(_ context.Context, _ uuid.UUID, actor booking.Actor) (*booking.Slot, error) {
	s.lastActor = actor
	return s.slot, s.err
}

func testRouter(svc BookingService) http.Handler {
	return NewRouter(RouterConfig{Service: svc, HorizonDays: 30})
}

func sampleAppointment() *booking.Appointment {
	return &booking.Appointment{
		ID:            uuid.New(),
		Number:        "APT-TEST0001",
		PatientID:     uuid.New(),
		DoctorID:      uuid.New(),
		SlotID:        uuid.New(),
		ScheduledAt:   time.Date(2025, 9, 3, 9, 0, 0, 0, time.UTC),
		Status:        booking.StatusPending,
		PaymentStatus: booking.PaymentPending,
		AmountCents:   10000,
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var out ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	appt := sampleAppointment()
	svc := &stubService{appt: appt}
	router := testRouter(svc)

	body := `{"patient_id":"` + appt.PatientID.String() + `","slot_id":"` + appt.SlotID.String() + `"}`
	rec := doRequest(t, router, "POST", "/appointments", body, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)

	var out AppointmentResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, appt.Number, out.Number)
	assert.Equal(t, "pending", out.Status)
	assert.Equal(t, int64(10000), out.AmountCents)
}

func TestCreateAppointmentBadInput(t *testing.T) {
	router := testRouter(&stubService{})

	rec := doRequest(t, router, "POST", "/appointments", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, "POST", "/appointments", `{"patient_id":"nope","slot_id":"nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_patient_id", decodeError(t, rec).Error)
}

func TestErrorMapping(t *testing.T) {
	id := uuid.New()
	actorHeaders := map[string]string{"X-Actor-ID": uuid.New().String()}

	tests := []struct {
		name       string
		err        error
		method     string
		path       string
		body       string
		headers    map[string]string
		wantStatus int
		wantCode   string
	}{
		{
			name: "slot conflict on create", err: booking.ErrSlotBeingBooked,
			method: "POST", path: "/appointments",
			body:       `{"patient_id":"` + id.String() + `","slot_id":"` + id.String() + `"}`,
			wantStatus: http.StatusConflict, wantCode: "slot_being_booked",
		},
		{
			name: "slot taken on create", err: booking.ErrSlotUnavailable,
			method: "POST", path: "/appointments",
			body:       `{"patient_id":"` + id.String() + `","slot_id":"` + id.String() + `"}`,
			wantStatus: http.StatusConflict, wantCode: "slot_unavailable",
		},
		{
			name: "unknown patient", err: booking.ErrPatientNotFound,
			method: "POST", path: "/appointments",
			body:       `{"patient_id":"` + id.String() + `","slot_id":"` + id.String() + `"}`,
			wantStatus: http.StatusNotFound, wantCode: "patient_not_found",
		},
		{
			name: "window closed on cancel", err: booking.ErrCancellationWindowClosed,
			method: "POST", path: "/appointments/" + id.String() + "/cancel",
			headers:    actorHeaders,
			wantStatus: http.StatusUnprocessableEntity, wantCode: "cancellation_window_closed",
		},
		{
			name: "foreign appointment on cancel", err: booking.ErrAccessDenied,
			method: "POST", path: "/appointments/" + id.String() + "/cancel",
			headers:    actorHeaders,
			wantStatus: http.StatusForbidden, wantCode: "access_denied",
		},
		{
			name: "complete from pending", err: booking.ErrInvalidTransition,
			method: "POST", path: "/appointments/" + id.String() + "/complete",
			headers:    map[string]string{"X-Actor-ID": uuid.New().String(), "X-Actor-Role": "doctor"},
			wantStatus: http.StatusConflict, wantCode: "invalid_status_transition",
		},
		{
			name: "missing appointment on confirm", err: booking.ErrAppointmentNotFound,
			method: "POST", path: "/appointments/" + id.String() + "/confirm",
			wantStatus: http.StatusNotFound, wantCode: "appointment_not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(&stubService{err: tt.err})
			rec := doRequest(t, router, tt.method, tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Error)
		})
	}
}

func TestCancelRequiresActor(t *testing.T) {
	router := testRouter(&stubService{appt: sampleAppointment()})

	rec := doRequest(t, router, "POST", "/appointments/"+uuid.NewString()+"/cancel", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_actor", decodeError(t, rec).Error)

	rec = doRequest(t, router, "POST", "/appointments/"+uuid.NewString()+"/cancel", "",
		map[string]string{"X-Actor-ID": uuid.NewString(), "X-Actor-Role": "superuser"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelDefaultsToPatientRole(t *testing.T) {
	svc := &stubService{appt: sampleAppointment()}
	router := testRouter(svc)

	actorID := uuid.New()
	rec := doRequest(t, router, "POST", "/appointments/"+uuid.NewString()+"/cancel", "",
		map[string]string{"X-Actor-ID": actorID.String()})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, actorID, svc.lastActor.ID)
	assert.Equal(t, booking.RolePatient, svc.lastActor.Role)
}

func TestGenerateSlotsEndpoint(t *testing.T) {
	svc := &stubService{created: 48}
	router := testRouter(svc)

	body := `{"start_date":"2025-09-08","end_date":"2025-09-12"}`
	rec := doRequest(t, router, "POST", "/doctors/"+uuid.NewString()+"/slots/generate", body, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var out GenerateSlotsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, 48, out.Created)

	rec = doRequest(t, router, "POST", "/doctors/"+uuid.NewString()+"/slots/generate",
		`{"start_date":"2025-09-12","end_date":"2025-09-08"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_date_range", decodeError(t, rec).Error)
}

func TestAvailableSlotsEndpoint(t *testing.T) {
	slot := booking.Slot{
		ID:        uuid.New(),
		DoctorID:  uuid.New(),
		Date:      time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC),
		StartTime: time.Date(2025, 9, 8, 9, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2025, 9, 8, 9, 30, 0, 0, time.UTC),
		Status:    booking.SlotAvailable,
	}
	router := testRouter(&stubService{slots: []booking.Slot{slot}})

	rec := doRequest(t, router, "GET", "/doctors/"+slot.DoctorID.String()+"/slots?start_date=2025-09-08&end_date=2025-09-14", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var out []SlotResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "2025-09-08", out[0].Date)
	assert.Equal(t, "available", out[0].Status)

	rec = doRequest(t, router, "GET", "/doctors/"+slot.DoctorID.String()+"/slots?start_date=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPaymentWebhook(t *testing.T) {
	appt := sampleAppointment()
	appt.Status = booking.StatusConfirmed
	svc := &stubService{appt: appt}
	router := testRouter(svc)

	body := `{"appointment_id":"` + appt.ID.String() + `","status":"success"}`
	rec := doRequest(t, router, "POST", "/payments/webhook", body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	body = `{"appointment_id":"` + appt.ID.String() + `","status":"failure","failure_reason":"card declined"}`
	rec = doRequest(t, router, "POST", "/payments/webhook", body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "card declined", svc.lastReason)

	body = `{"appointment_id":"` + appt.ID.String() + `","status":"maybe"}`
	rec = doRequest(t, router, "POST", "/payments/webhook", body, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
