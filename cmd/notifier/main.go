package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logger"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel).With(zap.String("service", cfg.ServiceName+"-notifier"))
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sender notify.Sender = &notify.LogSender{Log: log}
	if cfg.SMTPAddr != "" {
		sender = &notify.SMTPSender{Addr: cfg.SMTPAddr, Username: cfg.SMTPUser, Password: cfg.SMTPPassword, From: cfg.SMTPFrom}
	} else {
		log.Warn("SMTP_ADDR not set, notifications are only logged")
	}

	d := &notify.Dispatcher{Sender: sender, AdminEmails: cfg.AdminEmails, Log: log}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("redis unavailable, redeliveries may send twice", zap.Error(err))
	} else {
		d.Dedup = &redisx.Deduper{Client: rdb, Scope: "notifier"}
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, notify.TopicNotifications, cfg.NotifierWorkers, log)
	log.Info("notifier consumer started", zap.String("group", cfg.NotifierGroup),
		zap.String("topic", notify.TopicNotifications), zap.Int("workers", cfg.NotifierWorkers))
	if err := cons.Start(ctx, d.Handle); err != nil {
		log.Error("consumer exit", zap.Error(err))
		return
	}
	log.Info("shutting down consumer...")
}
