package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShariqSheikhh/AssemblyOS/internal/config"
	"github.com/ShariqSheikhh/AssemblyOS/internal/engine"
	"github.com/ShariqSheikhh/AssemblyOS/internal/events"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/db"
	httpx "github.com/ShariqSheikhh/AssemblyOS/internal/infra/http"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/memstore"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/metrics"
	"github.com/ShariqSheikhh/AssemblyOS/internal/infra/pgstore"
	"github.com/ShariqSheikhh/AssemblyOS/internal/notify"
)

type store interface {
	engine.Store
	httpx.Catalog
}

// app is everything a command needs, built from config.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	store   store
	engine  *engine.Engine
	closers []func() error
}

func (a *app) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = errors.Join(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

// openStore connects the configured storage driver.
func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store, func() error, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory storage; data is lost on exit and only one process may run")
		return memstore.New(cfg.Postgres.LockTimeout), func() error { return nil }, nil
	case config.DriverPostgres:
		pool, err := db.Connect(ctx, cfg.Postgres.DSN, db.Options{
			MaxConns:    cfg.Postgres.MaxConns,
			LockTimeout: cfg.Postgres.LockTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("db connect: %w", err)
		}
		log.Info("db connected", "max_conns", cfg.Postgres.MaxConns, "lock_timeout", cfg.Postgres.LockTimeout)
		return pgstore.New(pool), func() error { pool.Close(); return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// observers builds the optional post-commit fan-out. A broken notifier
// never stops the service.
func observers(cfg config.Config, log *slog.Logger) ([]engine.Observer, []func() error) {
	var (
		obs     []engine.Observer
		closers []func() error
	)

	if cfg.Notify.TelegramToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.Notify.TelegramToken)
		if err != nil {
			log.Error("telegram init failed, low stock alerts disabled", "err", err)
		} else {
			log.Info("telegram notifications enabled", "bot", bot.Self.UserName)
			obs = append(obs, notify.NewLowStock(bot, log, cfg.Notify.LowStockThreshold, cfg.Notify.AdminChatID))
		}
	}

	if len(cfg.Events.Brokers) > 0 {
		pub := events.NewPublisher(events.NewWriter(cfg.Events.Brokers, cfg.Events.Topic), log)
		obs = append(obs, pub)
		closers = append(closers, pub.Close)
		log.Info("event publishing enabled", "brokers", cfg.Events.Brokers, "topic", cfg.Events.Topic)
	}
	return obs, closers
}

func newApp(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (*app, error) {
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, store: st, closers: []func() error{closeStore}}

	obs, closers := observers(cfg, log)
	a.closers = append(a.closers, closers...)

	opts := []engine.Option{engine.WithLogger(log), engine.WithObservers(obs...)}
	if reg != nil {
		opts = append(opts, engine.WithMetrics(metrics.New(reg)))
	}
	a.engine = engine.New(st, opts...)
	return a, nil
}
