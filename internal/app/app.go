// Package app wires the sync engine for a host process: it opens and migrates
// the local database, builds the remote client and the orchestrator, and
// drains pending changes on shutdown.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/PatrikBaldon/RegiFarm-sub002/internal/archive"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/common"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/config"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/dbx"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/engine"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/filex"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/logging"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/migrations"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/migrator"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/remote"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/schema"
	"github.com/PatrikBaldon/RegiFarm-sub002/internal/store"
)

// Options overrides the collaborators Initialize would otherwise build from
// the config. Zero values mean "build the default".
type Options struct {
	Registry *schema.Registry
	Remote   remote.Client
	Archiver archive.Archiver
	Logger   logging.Logger
	Clock    common.Clock
	OnStatus func(engine.StatusEvent)
}

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	clock     common.Clock
	db        *sql.DB
	store     *store.Store
	engine    *engine.Orchestrator

	// Migration is the outcome of the schema check run by Initialize.
	Migration migrator.Result
}

// Initialize opens the database, brings its schema to the registry version
// and builds a ready-to-start orchestrator. A failed migration is fatal.
func Initialize(ctx context.Context, cfg *config.Config, opts Options) (a *App, err error) {
	a = &App{config: cfg, logger: opts.Logger, clock: opts.Clock}
	if a.clock == nil {
		a.clock = common.RealClock{}
	}
	defer func() {
		if err != nil {
			a.close()
			a = nil
		}
	}()

	if a.logger == nil {
		l, closer, lerr := logging.New(logging.Options{
			Level:      cfg.Log.Level,
			Format:     cfg.Log.Format,
			File:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
		if lerr != nil {
			return a, fmt.Errorf("logger init error: %w", lerr)
		}
		a.logger, a.logCloser = l, closer
	}

	registry := opts.Registry
	if registry == nil {
		registry = schema.Default()
	}
	if err = registry.Validate(); err != nil {
		return a, fmt.Errorf("schema registry: %w", err)
	}

	if err = filex.EnsureParentDir(cfg.DatabasePath); err != nil {
		return a, fmt.Errorf("db dir: %w", err)
	}
	a.db, err = dbx.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return a, fmt.Errorf("db init error: %w", err)
	}
	if err = migrations.Run(ctx, a.db); err != nil {
		return a, fmt.Errorf("bookkeeping migrations: %w", err)
	}

	archiver := opts.Archiver
	if archiver == nil {
		archiver, err = archive.New(ctx, cfg.Archive, a.clock)
		if err != nil {
			return a, err
		}
	}
	a.Migration, err = migrator.New(a.db, registry, archiver, a.logger).Run(ctx)
	if err != nil {
		return a, err
	}

	a.store = store.New(a.db, registry, a.logger, a.clock)

	client := opts.Remote
	if client == nil {
		client = remote.NewHTTPClient(cfg.ServerURL, cfg.RequestTimeout, a.logger)
	}
	a.engine = engine.New(a.store, client, engine.Options{
		Interval:             cfg.SyncInterval,
		OutboxRetention:      cfg.OutboxRetention,
		ConsistencyThreshold: cfg.ConsistencyThreshold,
		ConsistencyMinSample: cfg.ConsistencyMinSample,
		Clock:                a.clock,
		Logger:               a.logger,
		OnStatus:             opts.OnStatus,
	})

	token := cfg.AuthToken
	if token == "" {
		token, _ = a.store.MetaString(ctx, common.MetaAuthToken)
	}
	a.engine.SetAuthToken(token)
	a.engine.SetTenantID(cfg.TenantID)

	a.logger.Info(ctx, "sync engine initialized", "db", cfg.DatabasePath, "server", cfg.ServerURL,
		"schema_version", a.Migration.To, "rebuilt", a.Migration.Rebuilt)
	return a, nil
}

func (a *App) Engine() *engine.Orchestrator { return a.engine }

func (a *App) Store() *store.Store { return a.store }

func (a *App) Logger() logging.Logger { return a.logger }

// SaveAuthToken persists token for later runs and applies it right away.
func (a *App) SaveAuthToken(ctx context.Context, token string) error {
	if err := remote.CheckToken(token, a.clock.Now()); err != nil {
		return err
	}
	if !a.store.SetMeta(ctx, common.MetaAuthToken, token) {
		return common.ErrStoreClosed
	}
	a.engine.SetAuthToken(token)
	return nil
}

// Shutdown stops the scheduler, pushes what is still pending within
// DrainTimeout and closes the database.
func (a *App) Shutdown(ctx context.Context) error {
	a.engine.Stop()

	res := a.engine.Drain(ctx, a.config.DrainTimeout)
	switch {
	case res.Skipped:
	case res.Success:
		a.logger.Info(ctx, "outbox drained", "pushed", res.Push.Pushed(), "failed", res.Push.Failed)
	default:
		a.logger.Warn(ctx, "outbox drain incomplete", "reason", res.Reason)
	}

	return a.close()
}

// Close releases the database without draining the outbox.
func (a *App) Close() error { return a.close() }

func (a *App) close() error {
	var errs []error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
		a.db = nil
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
		a.logCloser = nil
	}
	return errors.Join(errs...)
}

func (a *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the scheduler and blocks until ctx is cancelled or the process
// receives a termination signal, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	a.logger.Info(ctx, "Starting sync engine...")
	a.initSignalHandler(cancelFunc)

	a.engine.Start(ctx)
	<-ctx.Done()

	a.logger.Info(ctx, "Shutting down...")
	return a.Shutdown(context.WithoutCancel(ctx))
}
