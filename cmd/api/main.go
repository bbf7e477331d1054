package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/catalog"
	"github.com/ariefcatur/go-storefront-orders/internal/checkout"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logger"
	"github.com/ariefcatur/go-storefront-orders/internal/memstore"
	"github.com/ariefcatur/go-storefront-orders/internal/notify"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/payment"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/pricing"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stores is the persistence wiring shared by every service.
type stores struct {
	catalog    catalog.Store
	inventory  inventory.Store
	invTx      inventory.Transactor
	orders     orders.Store
	checkoutTx checkout.Transactor
	close      func()
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.LogLevel).With(zap.String("service", cfg.ServiceName))
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("open stores", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer st.close()

	// Redis is a fast path only; without it the service runs on the database alone.
	var rdb *redis.Client
	if c := redisx.New(cfg.RedisAddr); c.Ping(ctx).Err() != nil {
		log.Warn("redis unavailable, running without cache and dedup", zap.String("addr", cfg.RedisAddr))
		_ = c.Close()
	} else {
		rdb = c
		defer rdb.Close()
	}

	var notifier notify.Notifier = &notify.LogNotifier{Log: log}
	var prod *kafkax.Producer
	if cfg.NotifyBackend == "kafka" && len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicNotifications, 1024, log)
		prod.Start(ctx)
		notifier = &notify.KafkaNotifier{Producer: prod, Service: cfg.ServiceName}
	}

	provider, err := paymentProvider(cfg, log)
	if err != nil {
		log.Fatal("payment provider", zap.Error(err))
	}

	invLedger := &inventory.Ledger{
		Store:             st.inventory,
		Tx:                st.invTx,
		Catalog:           st.catalog,
		Notifier:          notifier,
		Threshold:         cfg.LowStockThreshold,
		DefaultReorderQty: cfg.DefaultReorderQty,
		Log:               log.Named("inventory"),
	}
	orderLedger := &orders.Ledger{
		Store:    st.orders,
		Notifier: notifier,
		Log:      log.Named("orders"),
	}
	orch := &checkout.Orchestrator{
		Catalog:     st.catalog,
		Pricing:     pricing.Calculator{ShippingFee: cfg.ShippingFee, FreeShippingThreshold: cfg.FreeShippingThreshold, TaxRate: cfg.TaxRate},
		Inventory:   invLedger,
		Orders:      orderLedger,
		Tx:          st.checkoutTx,
		Payments:    provider,
		Retry:       checkout.DefaultRetry(),
		Currency:    cfg.Currency,
		FrontendURL: cfg.FrontendURL,
		Log:         log.Named("checkout"),
	}
	if rdb != nil {
		orderLedger.Cache = &orders.RedisStatusCache{Client: rdb}
		orch.Dedup = &redisx.Deduper{Client: rdb, Scope: "checkout"}
		orch.Idem = &redisx.Idempotency{Client: rdb}
	}

	router := httpx.NewRouter(log.Named("http"))
	admin := httpx.AdminOnly(cfg.AdminToken)
	(&httpx.CheckoutHandler{Svc: orch, Log: log}).Register(router)
	(&httpx.OrdersHandler{Svc: orderLedger, Log: log}).Register(router, admin)
	(&httpx.InventoryHandler{Svc: invLedger, Log: log}).Register(router, admin)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("backend", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		return runSweeper(gctx, cfg.SweepInterval, rdb, invLedger, log.Named("sweeper"))
	})

	if err := g.Wait(); err != nil {
		log.Error("exit", zap.Error(err))
	}
	if prod != nil {
		prod.Close()      // stop accepting, flush inbox
		prod.WaitClosed() // writer closed
	}
}

// paymentProvider is nil for direct checkout; the order is then placed
// without a payment step and the webhook endpoint rejects every delivery.
func paymentProvider(cfg config.Config, log *zap.Logger) (payment.Provider, error) {
	if cfg.CheckoutFlow == "direct" {
		log.Warn("direct checkout enabled, orders are placed without payment")
		return nil, nil
	}
	secret, err := cfg.WebhookSecret()
	if err != nil {
		return nil, err
	}
	if cfg.StripeSecretKey != "" {
		return payment.NewStripeProvider(cfg.StripeSecretKey, secret), nil
	}
	log.Warn("STRIPE_SECRET_KEY not set, using the offline payment provider")
	return &payment.OfflineProvider{FrontendURL: cfg.FrontendURL, WebhookSecret: secret}, nil
}

func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*stores, error) {
	if cfg.StoreBackend == "memory" {
		mem := memstore.New()
		mem.Seed(memstore.DemoCatalog()...)
		log.Warn("using the in-memory store, data is lost on exit")
		return &stores{
			catalog:    mem,
			inventory:  mem,
			invTx:      mem.InventoryTx(),
			orders:     mem,
			checkoutTx: mem.CheckoutTx(),
			close:      func() {},
		}, nil
	}

	pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	cat := &catalog.Repo{DB: pool}
	if cfg.SeedDemoCatalog {
		for _, p := range memstore.DemoCatalog() {
			if err := cat.Upsert(ctx, &p); err != nil {
				pool.Close()
				return nil, err
			}
		}
		log.Info("demo catalog seeded")
	}
	return &stores{
		catalog:    cat,
		inventory:  &inventory.Repo{DB: pool},
		invTx:      inventory.PGTransactor{Pool: pool},
		orders:     &orders.Repo{DB: pool},
		checkoutTx: checkout.PGTransactor{Pool: pool},
		close:      pool.Close,
	}, nil
}
