package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"reportbot/internal/app"
	"reportbot/internal/config"
	"reportbot/internal/mtproto"
	"reportbot/internal/mtproto/mtprototest"
	"reportbot/internal/session"
	"reportbot/internal/transport/telegram"
	"reportbot/pkg/logx"
)

func main() {
	var (
		cfgPath string
		envPath string
	)
	flag.StringVar(&cfgPath, "config", "", "path to optional yaml tunables file")
	flag.StringVar(&envPath, "env", ".env", "path to .env file with required secrets")
	flag.Parse()

	if err := run(cfgPath, envPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(cfgPath, envPath string) error {
	// Missing .env is fine: the environment itself may carry the secrets.
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load %s: %w", envPath, err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, closeLog := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.FilePath != "", Path: cfg.Logging.FilePath},
	})
	defer func() { _ = closeLog() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := session.NewFileStore(cfg.SessionsDir, log.With(logx.String("comp", "session")))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	// Real MTProto drivers are linked into the binary and register themselves
	// under their own names; "sim" ships in-tree for dry runs.
	mtproto.Register("sim", func(mtproto.Options) (mtproto.Dialer, error) {
		return mtprototest.NewDialer(), nil
	})
	dialer, err := mtproto.OpenDialer(cfg.MTProtoDriver, mtproto.Options{
		Credentials: mtproto.Credentials{APIID: cfg.APIID, APIHash: cfg.APIHash},
		SessionPath: store.Path,
	})
	if err != nil {
		return err
	}
	if cfg.MTProtoDriver == "sim" {
		log.Warn("using simulated mtproto driver; no real requests will be made")
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.BotToken,
		PollTimeout: cfg.PollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}

	bot, err := app.New(cfg, adapter, store, dialer, log)
	if err != nil {
		return err
	}
	if err := bot.Start(ctx); err != nil {
		return err
	}

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		log.Debug("sd_notify ready sent")
	}

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	return bot.Stop(stopCtx)
}
