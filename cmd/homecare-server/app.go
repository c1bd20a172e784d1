package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/ehr/homecare/internal/config"
	"github.com/ehr/homecare/internal/domain/invoicing"
	"github.com/ehr/homecare/internal/domain/patient"
	"github.com/ehr/homecare/internal/domain/statement"
	"github.com/ehr/homecare/internal/domain/tariff"
	"github.com/ehr/homecare/internal/platform/blobstore"
	"github.com/ehr/homecare/internal/platform/calendar"
	"github.com/ehr/homecare/internal/platform/db"
	"github.com/ehr/homecare/internal/platform/pdf"
	"github.com/ehr/homecare/internal/platform/telemetry"
)

// app holds the collaborators built once at startup.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	pool     *pgxpool.Pool
	registry *prometheus.Registry
	metrics  *telemetry.Metrics
	blobs    *blobstore.FSBlobStore
	notifier *calendar.Notifier

	tariff     *tariff.Service
	patients   *patient.Service
	invoicing  *invoicing.Service
	statements *statement.Service
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		TimeZone: cfg.TimeZone,
	})
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	basis, err := statement.ParseBasis(cfg.RecapBasis)
	if err != nil {
		return nil, err
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, pool: pool, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = telemetry.New(a.registry)

	a.blobs, err = blobstore.NewLocalBlobStore(cfg.BlobDir)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	txm := db.NewTxManager(pool, logger)
	txm.OnRetry(a.metrics.IncrementTxRetry)

	careCodes := tariff.NewCareCodeRepoPG(pool)
	patients := patient.NewPatientRepoPG(pool)
	stays := patient.NewHospitalizationRepoPG(pool)
	prescriptions := patient.NewPrescriptionRepoPG(pool)

	a.tariff = tariff.NewService(careCodes, tariff.NewValidityPeriodRepoPG(pool), txm)
	a.tariff.SetObserver(a.metrics)

	a.patients = patient.NewService(patients, stays, patient.NewPhysicianRepoPG(pool), prescriptions,
		a.blobs, txm, loc, logger)
	a.patients.SetObserver(a.metrics)

	a.invoicing = invoicing.NewService(
		invoicing.NewInvoiceRepoPG(pool), invoicing.NewPrestationRepoPG(pool),
		invoicing.NewEmployeeRepoPG(pool), invoicing.NewBatchRepoPG(pool),
		invoicing.References{
			CareCodes:        careCodes,
			Patients:         patients,
			Hospitalizations: stays,
			Prescriptions:    prescriptions,
		},
		a.blobs, txm, invoicing.Config{AtHomeCode: cfg.AtHomeCareCode, Location: loc}, logger)
	a.invoicing.SetObserver(a.metrics)

	if cfg.CalendarEndpoint != "" {
		a.notifier, err = calendar.NewNotifier(cfg.CalendarEndpoint, cfg.CalendarSecret, logger,
			calendar.WithMaxRetries(cfg.CalendarMaxRetries),
			calendar.WithObserver(a.metrics.IncrementCalendarDelivery))
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("calendar notifier: %w", err)
		}
		a.invoicing.AfterPrestationCommit(a.invoicing.CalendarHook(a.notifier))
		logger.Info().Str("endpoint", cfg.CalendarEndpoint).Msg("calendar mirroring enabled")
	}

	a.statements = statement.NewService(a.invoicing, a.patients, a.tariff, pdf.NewRenderer(), a.blobs,
		statement.Config{
			Provider: statement.Provider{
				Name:          cfg.ProviderName,
				Address:       cfg.ProviderAddress,
				ZipCity:       cfg.ProviderZipCity,
				Phone:         cfg.ProviderPhone,
				Code:          cfg.ProviderCode,
				MainIBAN:      cfg.MainBankAccount,
				AlternateIBAN: cfg.AltBankAccount,
			},
			Basis:    basis,
			Location: loc,
		}, logger)
	a.statements.SetObserver(a.metrics)

	return a, nil
}

// close drains pending calendar notifications and releases the pool.
func (a *app) close() {
	if a.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.notifier.Close(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("calendar notifications dropped on shutdown")
		}
	}
	a.pool.Close()
}
