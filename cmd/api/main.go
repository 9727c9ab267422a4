package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-pos-checkout/internal/audit"
	"github.com/ariefcatur/go-pos-checkout/internal/catalog"
	"github.com/ariefcatur/go-pos-checkout/internal/checkout"
	"github.com/ariefcatur/go-pos-checkout/internal/config"
	"github.com/ariefcatur/go-pos-checkout/internal/httpx"
	"github.com/ariefcatur/go-pos-checkout/internal/inventory"
	kafkax "github.com/ariefcatur/go-pos-checkout/internal/kafka"
	"github.com/ariefcatur/go-pos-checkout/internal/metrics"
	"github.com/ariefcatur/go-pos-checkout/internal/observability"
	"github.com/ariefcatur/go-pos-checkout/internal/orders"
	"github.com/ariefcatur/go-pos-checkout/internal/payment"
	"github.com/ariefcatur/go-pos-checkout/internal/postgres"
	"github.com/ariefcatur/go-pos-checkout/internal/pricing"
	"github.com/ariefcatur/go-pos-checkout/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type backend struct {
	catalog   catalog.Store
	orders    orders.Store
	ledger    inventory.Ledger
	committer checkout.Committer // nil for the memory backend
	close     func()
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	log, err := cfg.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	// Storage
	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	// Redis (optional)
	var rdb redis.Cmdable
	if cfg.RedisAddr != "" {
		c := redisx.New(cfg.RedisAddr)
		defer c.Close()
		rdb = c
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Audit sink: always the log, plus Kafka when brokers are configured
	sink := audit.Multi{audit.LogSink{Logger: log.Named("audit")}}
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, cfg.AuditTopic, 1024, log.Named("audit-producer"),
			kafkax.WithMetrics(metrics.NewProducerMetrics(reg)))
		sink = append(sink, audit.KafkaSink{Producer: prod, Service: cfg.ServiceName})
	}

	// Engine
	engine := pricing.NewEngine(cfg.TaxRate)
	om := orders.NewManager(be.orders, be.catalog, engine, sink, log.Named("orders"))
	sim := payment.NewSimulator(cfg.CardApprovalRate, cfg.CardDelay, payment.NewSeededDecider(paymentSeed(cfg)))
	opts := []checkout.Option{
		checkout.WithTimeout(cfg.CheckoutTimeout),
		checkout.WithMetrics(metrics.NewCheckoutMetrics(reg)),
	}
	if be.committer != nil {
		opts = append(opts, checkout.WithCommitter(be.committer))
	}
	co := checkout.New(om, be.ledger, sim, sink, log.Named("checkout"), opts...)
	inv := &inventory.Service{Ledger: be.ledger, Audit: sink, Log: log.Named("inventory")}

	// HTTP
	router := httpx.NewRouter(log.Named("http"), metrics.NewServerMetrics(reg, "api"), cfg.RequestTimeout())
	router.Handle("/metrics", metrics.Handler(reg))
	httpx.Mount(router,
		&httpx.OrdersHandler{Orders: om, Checkout: co, Redis: rdb, Log: log, CheckoutTimeout: cfg.CheckoutTimeout},
		&httpx.InventoryHandler{Service: inv, Log: log},
		&httpx.MenuHandler{Catalog: be.catalog, Log: log},
	)
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	if prod != nil {
		prodCtx, cancelProd := context.WithCancel(context.Background())
		defer cancelProd()
		prod.Start(prodCtx)
		defer func() {
			prod.Close() // flush what is queued, then close the writer
			prod.WaitClosed()
			log.Info("audit producer closed", zap.Int64("dropped", prod.Dropped()))
		}()
	}
	g.Go(func() error {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("backend", cfg.StorageBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.CheckoutTimeout+time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

func openBackend(ctx context.Context, cfg config.Config, log *zap.Logger) (backend, error) {
	if cfg.StorageBackend == config.BackendPostgres {
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return backend{}, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return backend{}, err
		}
		store := &orders.PostgresStore{DB: db}
		ledger := inventory.NewPostgresLedger(db, cfg.LockWait)
		return backend{
			catalog:   &catalog.PostgresStore{DB: db},
			orders:    store,
			ledger:    ledger,
			committer: checkout.PostgresCommitter{Orders: store, Ledger: ledger},
			close:     db.Close,
		}, nil
	}

	items := catalog.SeedItems()
	ledger := inventory.NewMemoryLedger(inventory.WithLockWait(cfg.LockWait))
	for _, it := range items {
		if it.IsTopping {
			ledger.Seed(it.ID, 200, 40)
		} else {
			ledger.Seed(it.ID, 100, 20)
		}
	}
	log.Info("using in-memory storage with the seed menu", zap.Int("items", len(items)))
	return backend{
		catalog: catalog.NewMemoryStore(items...),
		orders:  orders.NewMemoryStore(),
		ledger:  ledger,
		close:   func() {},
	}, nil
}

// paymentSeed keeps card outcomes reproducible when PAYMENT_SEED is set.
func paymentSeed(cfg config.Config) uint64 {
	if cfg.PaymentSeed != 0 {
		return cfg.PaymentSeed
	}
	return uint64(time.Now().UnixNano())
}
