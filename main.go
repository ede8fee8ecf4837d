package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"go.uber.org/zap"

	"tempo/bot"
	"tempo/config"
	"tempo/dal"
	"tempo/discordutils"
	"tempo/events"
	"tempo/logger"
	"tempo/scheduler"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(2)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(2)
	}
	defer func() { _ = log.Sync() }()

	store, err := dal.Open(cfg.DBPath, log)
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("closing database failed", zap.Error(err))
		}
	}()

	svc := events.NewService(store, log)

	b, err := bot.New(cfg.Token, cfg.GuildID, cfg.AutoReply, svc, log)
	if err != nil {
		log.Fatal("failed to start bot", zap.Error(err))
	}
	defer b.Shutdown()

	notifier := discordutils.NewNotifier(b.Session(), cfg.SendRate, log)
	reminders := scheduler.New(
		scheduler.Config{
			Interval:  cfg.TickInterval,
			Lookahead: cfg.Lookahead,
			Expiry:    cfg.EventExpiry,
			Workers:   cfg.DeliveryWorkers,
		},
		store,
		notifier,
		log,
	)
	if err := reminders.Start(); err != nil {
		log.Error("failed to start reminder scheduler", zap.Error(err))
		return
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("systemd notify failed", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutdown signal received")

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := reminders.Stop(ctx); err != nil {
		log.Warn("reminder scheduler did not stop cleanly", zap.Error(err))
	}
}
