package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type catalogEntry struct {
	title        string
	category     string
	price        float64
	minutes      int
	isTreatment  bool
	visits       int
	intervalDays *int
}

func days(n int) *int { return &n }

var catalog = []catalogEntry{
	{title: "Consulta general", category: "Diagnostico", price: 400, minutes: 30, visits: 1},
	{title: "Limpieza dental", category: "Preventivo", price: 700, minutes: 45, visits: 1},
	{title: "Extraccion simple", category: "Cirugia", price: 900, minutes: 45, visits: 1},
	{title: "Resina", category: "Restauracion", price: 850, minutes: 60, visits: 1},
	{title: "Ortodoncia", category: "Ortodoncia", price: 18000, minutes: 45, isTreatment: true, visits: 12},
	{title: "Endodoncia", category: "Endodoncia", price: 4500, minutes: 90, isTreatment: true, visits: 3, intervalDays: days(7)},
	{title: "Blanqueamiento", category: "Estetica", price: 3500, minutes: 60, isTreatment: true, visits: 2, intervalDays: days(14)},
	{title: "Implante", category: "Cirugia", price: 22000, minutes: 120, isTreatment: true, visits: 4, intervalDays: days(30)},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Bootstrap(os.Stderr).Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("component", "seed").Logger()
	logger.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PoolConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	gofakeit.Seed(0)

	seedCtx := context.Background()
	if err := seedPractitioners(seedCtx, pool, logger, envInt("SEED_PRACTITIONERS", 8)); err != nil {
		logger.Fatal().Err(err).Msg("seed practitioners")
	}
	if err := seedServices(seedCtx, pool, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed services")
	}
	if err := seedPatients(seedCtx, pool, logger, envInt("SEED_PATIENTS", 2000)); err != nil {
		logger.Fatal().Err(err).Msg("seed patients")
	}

	logger.Info().Msg("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding practitioners")

	positions := []string{"Odontologo", "Ortodoncista", "Endodoncista", "Cirujano maxilofacial"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		name := "Dr. " + gofakeit.FirstName() + " " + gofakeit.LastName()
		position := positions[gofakeit.Number(0, len(positions)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO empleados (nombre, puesto, activo)
			VALUES ($1, $2, TRUE)
		`, name, position)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("practitioners seeded")
	return nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger) error {
	logger.Info().Int("count", len(catalog)).Msg("seeding service catalog")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, c := range catalog {
		_, err := tx.Exec(ctx, `
			INSERT INTO servicios (titulo, categoria, precio, duracion_minutos, es_tratamiento, citas_estimadas, intervalo_visitas_dias)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, c.title, c.category, c.price, c.minutes, c.isTreatment, c.visits, c.intervalDays)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	logger.Info().Msg("service catalog seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, logger zerolog.Logger, count int) error {
	logger.Info().Int("count", count).Msg("seeding patients")

	const batchSize = 500
	genders := []string{"Masculino", "Femenino"}
	oldest := time.Now().AddDate(-85, 0, 0)
	youngest := time.Now().AddDate(-3, 0, 0)

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
			first := gofakeit.FirstName()
			paternal := gofakeit.LastName()
			email := strings.ToLower(first+"."+paternal) + strconv.Itoa(i) + "@" + gofakeit.DomainName()

			_, err := tx.Exec(ctx, `
				INSERT INTO pacientes (nombre, apellido_paterno, apellido_materno, genero, fecha_nacimiento, correo, telefono)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, first, paternal, gofakeit.LastName(), genders[gofakeit.Number(0, 1)],
				gofakeit.DateRange(oldest, youngest), email, gofakeit.Phone())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		logger.Info().Int("seeded", end).Int("total", count).Msg("patients batch committed")
	}

	logger.Info().Msg("patients seeded")
	return nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
