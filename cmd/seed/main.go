package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/medibook/booking/internal/db"
	"github.com/medibook/booking/internal/logging"
	"github.com/medibook/booking/internal/schedule"
)

func main() {
	logging.Init("seed", os.Getenv("APP_ENV"))
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatal().Err(err).Msg("schema migration")
	}

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, 100); err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(context.Background(), pool, 9000); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding doctors")

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	weekdaySets := []schedule.WeekdaySet{
		schedule.NewWeekdaySet(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
		schedule.NewWeekdaySet(time.Monday, time.Wednesday, time.Friday),
		schedule.NewWeekdaySet(time.Tuesday, time.Thursday, time.Saturday),
		schedule.NewWeekdaySet(time.Monday, time.Tuesday, time.Thursday, time.Friday),
	}

	slotLengths := []int{15, 20, 30, 45}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		days := weekdaySets[gofakeit.Number(0, len(weekdaySets)-1)]
		dayStart := 60 * gofakeit.Number(7, 9)
		dayEnd := 60 * gofakeit.Number(15, 18)
		slotMinutes := slotLengths[gofakeit.Number(0, len(slotLengths)-1)]
		feeCents := int64(gofakeit.Number(20, 200)) * 100

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, working_days, day_start_minutes,
				day_end_minutes, slot_minutes, fee_cents, currency, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		`, id, name, spec, int16(days), dayStart, dayEnd, slotMinutes, feeCents, "XOF")
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Msg("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, email, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("done", end).Int("total", count).Msg("patients seeded batch")
	}

	log.Info().Msg("patients seeded")
	return nil
}
