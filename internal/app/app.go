// Package app wires configuration into the concrete adapters shared by the
// HTTP server and the operator CLI.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bryanwahyu/sentiment-api/internal/application"
	appanalysis "github.com/bryanwahyu/sentiment-api/internal/application/analysis"
	"github.com/bryanwahyu/sentiment-api/internal/application/persistence"
	"github.com/bryanwahyu/sentiment-api/internal/config"
	domain "github.com/bryanwahyu/sentiment-api/internal/domain/analysis"
	"github.com/bryanwahyu/sentiment-api/internal/infra/ai/anthropic"
	"github.com/bryanwahyu/sentiment-api/internal/infra/ai/openai"
	"github.com/bryanwahyu/sentiment-api/internal/infra/classifier/heuristic"
	"github.com/bryanwahyu/sentiment-api/internal/infra/classifier/huggingface"
	mysqlp "github.com/bryanwahyu/sentiment-api/internal/infra/db/mysql"
	"github.com/bryanwahyu/sentiment-api/internal/infra/db/postgres"
	"github.com/bryanwahyu/sentiment-api/internal/infra/db/sqlite"
	"github.com/bryanwahyu/sentiment-api/internal/infra/extract"
	"github.com/bryanwahyu/sentiment-api/internal/infra/storage"
	"github.com/bryanwahyu/sentiment-api/internal/infra/telemetry"
	"github.com/bryanwahyu/sentiment-api/internal/middleware"
)

const eventBuffer = 256

// App holds the wired services and everything that must be closed.
type App struct {
	Analysis  *appanalysis.Service
	History   *persistence.Gateway
	Checks    map[string]middleware.Check
	Telemetry *telemetry.Dispatcher

	remoteDB *sql.DB
	localDB  *sql.DB
	logger   *slog.Logger
}

// Build connects every store and client described by cfg. The remote
// database and MinIO are optional: when they cannot be reached the service
// starts anyway and persistence falls back to the local store.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{logger: logger, Checks: map[string]middleware.Check{}}

	localDB, err := sqlite.Open(cfg.LocalStore.Path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	a.localDB = localDB
	local := sqlite.NewStore(localDB)
	a.Checks["local_store"] = middleware.Check{Checker: local}

	timeout := cfg.Analysis.ExternalTimeout
	remote, sink := a.connectRemote(ctx, cfg)
	a.History = persistence.NewGateway(remote, local, application.SystemClock{}, logger)
	a.History.Timeout = timeout
	a.Telemetry = telemetry.NewDispatcher(sink, eventBuffer, logger)

	web := extract.NewWeb(timeout, middleware.ValidateURL, logger)
	web.AddrGuard = middleware.CheckIP
	svc := &appanalysis.Service{
		Heuristic:      heuristic.New(),
		Images:         extract.NewOCR(cfg.OCR.Binary, cfg.OCR.Lang, timeout, logger),
		PDFs:           &extract.PDF{Logger: logger},
		Web:            web,
		Store:          a.History,
		Events:         a.Telemetry,
		Clock:          application.SystemClock{},
		Logger:         logger,
		BatchLimit:     cfg.Analysis.BatchLimit,
		BatchTimeout:   cfg.Analysis.BatchTimeout,
		MaxUpload:      cfg.Analysis.MaxUploadBytes,
		TargetLanguage: cfg.Analysis.TargetLanguage,
	}

	// tanpa API key langsung pakai heuristic
	if cfg.Classifier.APIKey != "" {
		hf, err := huggingface.NewClient(cfg.Classifier.URL, cfg.Classifier.APIKey, timeout, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("classifier: %w", err)
		}
		svc.Classifier = hf
	} else {
		logger.Info("app.classifier.heuristic_only")
	}

	if key := cfg.GeneratorAPIKey(); key != "" {
		switch cfg.AI.Provider {
		case config.ProviderAnthropic:
			svc.Generator = anthropic.NewClient(key, cfg.AI.Model, cfg.AI.BaseURL, timeout, logger)
		default:
			svc.Generator = openai.NewClient(key, cfg.AI.Model, cfg.AI.BaseURL, timeout, logger)
		}
	} else {
		logger.Info("app.generator.template_only", "provider", cfg.AI.Provider)
	}

	if cfg.Minio.Endpoint != "" {
		st, err := storage.New(ctx, cfg.Minio.Endpoint, cfg.Minio.Region, cfg.Minio.BucketName,
			cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL, timeout)
		if err != nil {
			logger.Warn("app.minio.unavailable", "endpoint", cfg.Minio.Endpoint, "error", err)
		} else {
			svc.Artifacts = st
			a.Checks["artifacts"] = middleware.Check{Checker: st, Optional: true}
		}
	}

	a.Analysis = svc
	return a, nil
}

// connectRemote returns a nil repository and sink only for driver "none".
// Otherwise the pool connects lazily: a database that is down at startup is
// logged and retried by every later call, including scheduled restores.
func (a *App) connectRemote(ctx context.Context, cfg *config.Config) (domain.Repository, domain.EventSink) {
	dsn := cfg.DSN()
	if cfg.Database.Driver == config.DriverNone || dsn == "" {
		a.logger.Info("app.remote.disabled", "driver", cfg.Database.Driver)
		return nil, nil
	}

	var (
		db   *sql.DB
		err  error
		repo interface {
			domain.Repository
			middleware.HealthChecker
			EnsureSchema(ctx context.Context) error
		}
		sink domain.EventSink
	)
	timeout := cfg.Analysis.ExternalTimeout
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		if db, err = postgres.Open(dsn); err == nil {
			r := postgres.NewRepository(db, timeout)
			repo, sink = r, postgres.NewEventSink(r)
		}
	default:
		if db, err = mysqlp.Open(dsn); err == nil {
			r := mysqlp.NewRepository(db, timeout)
			repo, sink = r, mysqlp.NewEventSink(r)
		}
	}
	if err != nil {
		a.logger.Warn("app.remote.invalid_dsn", "driver", cfg.Database.Driver, "error", err)
		return nil, nil
	}
	a.remoteDB = db

	if err := repo.EnsureSchema(ctx); err != nil {
		a.logger.Warn("app.remote.unreachable", "driver", cfg.Database.Driver, "error", err)
	}
	a.Checks["remote_db"] = middleware.Check{Checker: repo, Optional: true}
	return repo, sink
}

// Close drains telemetry and closes the databases.
func (a *App) Close() error {
	if a.Telemetry != nil {
		a.Telemetry.Close()
	}
	var errs []error
	if a.remoteDB != nil {
		errs = append(errs, a.remoteDB.Close())
	}
	if a.localDB != nil {
		errs = append(errs, a.localDB.Close())
	}
	return errors.Join(errs...)
}
