package main

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/mind-engage/certsync/internal/audit"
	"github.com/mind-engage/certsync/internal/certreq"
	"github.com/mind-engage/certsync/internal/config"
	"github.com/mind-engage/certsync/internal/db"
	"github.com/mind-engage/certsync/internal/lms"
	"github.com/mind-engage/certsync/internal/monitoring"
	"github.com/mind-engage/certsync/internal/scoresync"
)

// app holds the wired services shared by every command.
type app struct {
	cfg   config.Config
	log   *zap.Logger
	db    *sql.DB
	store certreq.Store
	lms   *lms.HTTPClient
	audit *audit.Repo
	sync  *scoresync.Service

	metrics *monitoring.MetricsService
	alerts  *monitoring.AlertManager
	health  *monitoring.HealthService
}

func newApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	driver, err := db.ParseDriver(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	dbh, err := db.Open(ctx, driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("db open failed: %w", err)
	}

	// the audit trail always lives in the local database
	a := &app{cfg: cfg, log: log, db: dbh, audit: audit.NewRepo(dbh)}
	switch cfg.Store.Kind {
	case "supabase":
		a.store = certreq.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.Key, cfg.Supabase.Timeout)
	default:
		a.store = certreq.NewSQLStore(dbh)
	}

	a.lms = lms.New(lms.Config{
		BaseURL:      cfg.LMS.BaseURL,
		APIKey:       cfg.LMS.APIKey,
		Subdomain:    cfg.LMS.Subdomain,
		TokenURL:     cfg.LMS.TokenURL,
		ClientID:     cfg.LMS.ClientID,
		ClientSecret: cfg.LMS.ClientSecret,
		Timeout:      cfg.LMS.Timeout,
	}, log.Named("lms"))

	a.sync, err = scoresync.New(a.store, a.lms, scoresync.Config{
		DefaultPassThreshold:   cfg.Scoring.PassThreshold,
		DefaultPracticalWeight: cfg.Scoring.PracticalWeight,
		DefaultWrittenWeight:   cfg.Scoring.WrittenWeight,
		DefaultRequiresBoth:    cfg.Scoring.RequiresBoth,
		BatchDelay:             cfg.Sync.BatchDelay,
	}, log)
	if err != nil {
		_ = dbh.Close()
		return nil, err
	}
	a.sync.Audit = a.audit

	a.metrics = monitoring.NewMetricsService(a.audit, cfg.Monitoring.Window, nil)
	rules := append(monitoring.DefaultRules(), cfg.Monitoring.Rules...)
	if a.alerts, err = monitoring.NewAlertManager(a.audit, log, nil, rules...); err != nil {
		_ = dbh.Close()
		return nil, err
	}
	a.health = monitoring.NewHealthService(dbh, a.lms, a.metrics)
	return a, nil
}

func (a *app) Close() error { return a.db.Close() }

func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}
