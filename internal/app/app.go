// Package app wires the bot together: the Telegram adapter feeding a single
// update loop, the authentication manager, the report dispatcher, auditing,
// and the janitor schedule.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"reportbot/internal/auth"
	"reportbot/internal/config"
	"reportbot/internal/mtproto"
	"reportbot/internal/report"
	"reportbot/internal/session"
	"reportbot/internal/storage"
	kit "reportbot/internal/transport"
	"reportbot/pkg/logx"
)

type App struct {
	cfg config.Config
	log logx.Logger

	adapter    kit.Adapter
	store      session.Store
	auth       *auth.Manager
	dispatcher *report.Dispatcher
	audit      storage.Store
	cron       *cron.Cron

	updates chan kit.Message

	// awaitingTarget marks operators whose next message is a report target.
	mu             sync.Mutex
	awaitingTarget map[int64]bool

	runCancel context.CancelFunc
	loopDone  chan struct{}
	// reportWG tracks the at-most-one background report run.
	reportWG sync.WaitGroup
}

func New(cfg config.Config, adapter kit.Adapter, store session.Store, dialer mtproto.Dialer, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	audit, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("audit storage: %w", err)
	}

	a := &App{
		cfg:     cfg,
		log:     log,
		adapter: adapter,
		store:   store,
		audit:   audit,
		auth:    auth.NewManager(dialer, log.With(logx.String("comp", "auth"))),
		dispatcher: report.NewDispatcher(report.Config{
			SendInterval: cfg.Report.SendInterval,
			FloodMargin:  cfg.Report.FloodMargin,
			Message:      cfg.Report.Message,
		}, store, dialer, log.With(logx.String("comp", "report"))),
		updates:        make(chan kit.Message, 64),
		awaitingTarget: map[int64]bool{},
	}
	a.auth.OnTerminal = a.auditAuth
	// A phone that is mid sign-in must never be dialed by a report run.
	a.dispatcher.SetHold(a.auth.Holds)
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.loopDone = make(chan struct{})

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return fmt.Errorf("start adapter: %w", err)
	}

	if err := a.adapter.UpdateMenuCommands(runCtx, menuCommands()); err != nil {
		a.log.Warn("menu update failed", logx.Err(err))
	}

	if a.cfg.Janitor.Enabled {
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(a.cfg.Janitor.Schedule, func() { a.janitor(runCtx) }); err != nil {
			a.log.Warn("janitor schedule invalid, job disabled",
				logx.String("schedule", a.cfg.Janitor.Schedule), logx.Err(err))
		} else {
			a.cron.Start()
		}
	}

	go a.loop(runCtx)

	a.log.Info("bot started",
		logx.Int64("admin", a.cfg.AdminID),
		logx.Int("sessions", a.store.Count()),
		logx.String("sessions_dir", a.cfg.SessionsDir))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.runCancel != nil {
		a.runCancel()
	}
	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	err := a.adapter.Stop(ctx)

	if a.loopDone != nil {
		select {
		case <-a.loopDone:
		case <-ctx.Done():
		}
	}
	a.reportWG.Wait()
	a.auth.Shutdown()

	if a.audit != nil {
		if cerr := a.audit.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.log.Info("bot stopped")
	return err
}

// loop is the single flow of control for operator interactions: updates are
// handled strictly one at a time, in arrival order.
func (a *App) loop(ctx context.Context) {
	defer close(a.loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-a.updates:
			a.handleSafe(ctx, m)
		}
	}
}

func (a *App) handleSafe(ctx context.Context, m kit.Message) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("panic in update handler", logx.Any("panic", r), logx.Int64("from", m.FromID))
			// A panicked flow must not hold its handle forever.
			a.auth.Cancel(m.FromID)
		}
	}()
	a.handle(ctx, m)
}

func (a *App) janitor(ctx context.Context) {
	phones, err := a.store.List(ctx)
	if err != nil {
		a.log.Warn("janitor list failed", logx.Err(err))
		return
	}
	a.log.Info("session inventory", logx.Int("sessions", len(phones)))
}

func (a *App) auditAuth(operatorID int64, phone string, final auth.Step) {
	if a.audit == nil {
		return
	}
	e := storage.AuditEntry{
		ActorID: operatorID,
		Action:  "add_account",
		Phone:   phone,
	}
	if final != auth.StepDone {
		e.Error = final.String()
	}
	if err := a.audit.AppendAudit(context.Background(), e); err != nil {
		a.log.Warn("audit append failed", logx.Err(err))
	}
}
