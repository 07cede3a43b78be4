// Package app wires the services together: config, logging, storage, the
// execution engine, the mail transport, and the scheduling coordinator.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"querybell/internal/config"
	"querybell/internal/engine"
	"querybell/internal/formreg"
	"querybell/internal/mailer"
	"querybell/internal/schedule"
	"querybell/internal/storage"
	"querybell/internal/workload"
	logx "querybell/pkg/logx"
)

type App struct {
	mgr    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store       *storage.Store
	dataDB      *sql.DB
	dataDBOwned bool

	workloads *workload.Store
	gate      *engine.Gate
	registry  *formreg.Registry
	mail      *mailer.Service
	executor  *engine.Executor
	sched     *schedule.Service

	cfgCh chan *config.Config
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logSvc, log := logx.New(logxConfig(cfg))
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(validate)

	storePath := cfg.Storage.Path
	if storePath == "" {
		storePath = "./querybell.db"
	}
	store, err := storage.Open(storage.Config{
		Path:        storePath,
		BusyTimeout: duration(cfg.Storage.BusyTimeout, 5*time.Second),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	dataDB := store.DB()
	dataDBOwned := false
	if cfg.Database != nil && cfg.Database.Path != "" {
		db, err := storage.OpenDB(cfg.Database.Path, duration(cfg.Database.BusyTimeout, 5*time.Second))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("open data database: %w", err)
		}
		dataDB = db
		dataDBOwned = true
	}

	registryPath := ""
	if cfg.Templates != nil {
		registryPath = cfg.Templates.Path
	}
	registry, err := formreg.Load(registryPath, log.With(logx.String("comp", "formreg")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	mailSvc, err := mailer.New(mailConfig(cfg), log.With(logx.String("comp", "mailer")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	workloads := workload.NewStore(store)
	gate := engine.NewGate(dataDB)
	executor := engine.NewExecutor(workloads, gate, mailSvc, registry, cfg.AdminEmail, log.With(logx.String("comp", "engine")))

	a := &App{
		mgr:         mgr,
		logSvc:      logSvc,
		log:         log,
		store:       store,
		dataDB:      dataDB,
		dataDBOwned: dataDBOwned,
		workloads:   workloads,
		gate:        gate,
		registry:    registry,
		mail:        mailSvc,
		executor:    executor,
	}
	a.sched = schedule.New(scheduleConfig(cfg), workloads, store, a.runTrigger, log.With(logx.String("comp", "schedule")))
	return a, nil
}

// runTrigger is the scheduled entrypoint: execute and persist the report.
// Errors end up inside the report; there is no caller to return them to.
func (a *App) runTrigger(ctx context.Context, id string) {
	report, err := a.executor.Run(ctx, id)
	if err != nil {
		a.log.Warn("scheduled run failed", logx.String("workload", id), logx.Err(err))
	}
	if serr := a.workloads.SaveLastRun(ctx, report); serr != nil {
		a.log.Warn("failed to persist last run", logx.String("workload", id), logx.Err(serr))
	}
}

// RunNow executes a workload interactively and persists its report.
func (a *App) RunNow(ctx context.Context, id string) (*workload.Report, error) {
	report, err := a.executor.Run(ctx, id)
	if serr := a.workloads.SaveLastRun(ctx, report); serr != nil {
		a.log.Warn("failed to persist last run", logx.String("workload", id), logx.Err(serr))
	}
	return report, err
}

// Start brings up the scheduler and the config watcher (daemon mode).
func (a *App) Start(ctx context.Context) error {
	if err := a.sched.Start(ctx); err != nil {
		return err
	}

	a.cfgCh = a.mgr.Subscribe(4)
	go func() { _ = a.mgr.Watch(ctx) }()
	go a.applyLoop(ctx)
	go a.sweepLoop(ctx)

	a.log.Info("querybell started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.sched.Stop(ctx)
	if a.cfgCh != nil {
		a.mgr.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}
	if a.dataDBOwned && a.dataDB != nil {
		_ = a.dataDB.Close()
	}
	err := a.store.Close()
	_ = a.logSvc.Close()
	return err
}

// applyLoop picks up config reloads for the hot-swappable services.
func (a *App) applyLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok || cfg == nil {
				return
			}
			a.logSvc.Apply(logxConfig(cfg))
			if err := a.mail.Apply(mailConfig(cfg)); err != nil {
				a.log.Warn("mail config rejected", logx.Err(err))
			}
			if cfg.Templates != nil && cfg.Templates.Path != "" {
				if err := a.registry.Reload(); err != nil {
					a.log.Warn("template registry reload failed", logx.Err(err))
				}
			}
			a.log.Info("config applied")
		}
	}
}

// sweepLoop reconciles triggers against the store so edits made by the CLI
// (a separate process) take effect without a restart. The actual sweep rate
// is throttled by the coordinator's store flag.
func (a *App) sweepLoop(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := a.sched.EnsureSchedules(ctx, false); err != nil {
				a.log.Warn("schedule sweep failed", logx.Err(err))
			}
		}
	}
}

func (a *App) Workloads() *workload.Store   { return a.workloads }
func (a *App) Gate() *engine.Gate           { return a.gate }
func (a *App) Mailer() *mailer.Service      { return a.mail }
func (a *App) Scheduler() *schedule.Service { return a.sched }
func (a *App) Logger() logx.Logger          { return a.log }

func validate(_ context.Context, cfg *config.Config) error {
	if cfg.Mail.Enabled && !cfg.Mail.DryRun && cfg.Mail.Host == "" {
		return fmt.Errorf("mail.host is required when mail is enabled")
	}
	return nil
}

func logxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mailConfig(cfg *config.Config) mailer.Config {
	return mailer.Config{
		Enabled:    cfg.Mail.Enabled,
		Host:       cfg.Mail.Host,
		Port:       cfg.Mail.Port,
		Username:   cfg.Mail.Username,
		Password:   cfg.Mail.Password,
		From:       cfg.Mail.From,
		RatePerSec: cfg.Mail.RatePerSec,
		Timeout:    duration(cfg.Mail.Timeout, 15*time.Second),
		DryRun:     cfg.Mail.DryRun,
	}
}

func scheduleConfig(cfg *config.Config) schedule.Config {
	return schedule.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Timezone:       cfg.Scheduler.Timezone,
		EnsureInterval: duration(cfg.Scheduler.EnsureInterval, time.Hour),
	}
}

func duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
