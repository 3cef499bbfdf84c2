package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/medibook/booking/internal/booking"
)

// BookingService is the surface the HTTP layer needs from the booking
// core. *booking.Service satisfies it; tests substitute a stub.
type BookingService interface {
	Create(ctx context.Context, patientID, slotID uuid.UUID, reason *string) (*booking.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID) (*booking.Appointment, error)
	RecordPaymentFailure(ctx context.Context, id uuid.UUID, reason string) error
	Cancel(ctx context.Context, id uuid.UUID, reason *string, actor booking.Actor) (*booking.Appointment, error)
	Reschedule(ctx context.Context, id, newSlotID uuid.UUID, actor booking.Actor) (*booking.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, actor booking.Actor) (*booking.Appointment, error)
	MarkNoShow(ctx context.Context, id uuid.UUID, actor booking.Actor) (*booking.Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*booking.AppointmentDetail, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]booking.AppointmentDetail, error)
	GenerateSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error)
	RegenerateSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error)
	AvailableSlots(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]booking.Slot, error)
	BlockSlot(ctx context.Context, slotID uuid.UUID, reason *string, actor booking.Actor) (*booking.Slot, error)
	UnblockSlot(ctx context.Context, slotID uuid.UUID, actor booking.Actor) (*booking.Slot, error)
}

type RouterConfig struct {
	Service     BookingService
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Env         string
	Version     string
	HorizonDays int
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	svc := cfg.Service

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(svc))
		r.Get("/", listAppointmentsHandler(svc))
		r.Get("/{id}", getAppointmentHandler(svc))
		r.Post("/{id}/confirm", confirmAppointmentHandler(svc))
		r.Post("/{id}/cancel", cancelAppointmentHandler(svc))
		r.Post("/{id}/reschedule", rescheduleAppointmentHandler(svc))
		r.Post("/{id}/complete", finishAppointmentHandler(svc, false))
		r.Post("/{id}/no-show", finishAppointmentHandler(svc, true))
	})

	r.Route("/doctors/{id}/slots", func(r chi.Router) {
		r.Get("/", availableSlotsHandler(svc, cfg.HorizonDays))
		r.Post("/generate", generateSlotsHandler(svc, false))
		r.Post("/regenerate", generateSlotsHandler(svc, true))
	})

	r.Route("/slots/{id}", func(r chi.Router) {
		r.Post("/block", blockSlotHandler(svc))
		r.Post("/unblock", unblockSlotHandler(svc))
	})

	r.Post("/payments/webhook", paymentWebhookHandler(svc))

	return r
}
