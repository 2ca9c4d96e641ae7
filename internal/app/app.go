package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/xenking/checkout-core/internal/domain/auth"
	"github.com/xenking/checkout-core/internal/domain/coupon"
	"github.com/xenking/checkout-core/internal/domain/order"
	"github.com/xenking/checkout-core/internal/domain/otp"
	"github.com/xenking/checkout-core/internal/domain/variation"
	"github.com/xenking/checkout-core/internal/handler"
	"github.com/xenking/checkout-core/internal/notify"
	"github.com/xenking/checkout-core/internal/payment"
	"github.com/xenking/checkout-core/internal/storage/files"
	"github.com/xenking/checkout-core/internal/storage/postgres"
	redisstore "github.com/xenking/checkout-core/internal/storage/redis"
	"github.com/xenking/checkout-core/pkg/health"
	"github.com/xenking/checkout-core/pkg/httpmiddleware"
)

const serviceName = "checkout-api"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))
	meter := m.MeterProvider().Meter(serviceName)

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// One-time-code store: Redis when configured, process memory otherwise.
	var codeStore otp.Store = otp.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		rdb, err := redisstore.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return errors.Wrap(err, "connect redis")
		}
		defer func() { _ = rdb.Close() }()
		codeStore = redisstore.NewOTPStore(rdb, cfg.Redis.Prefix)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	} else {
		lg.Warn("Redis not configured, one-time codes are kept in memory")
	}

	fileRemover, err := newFileRemover(cfg.Files)
	if err != nil {
		return errors.Wrap(err, "file store")
	}

	// Notifications.
	dispatcher, err := notify.NewDispatcher(lg.Named("notify"), meter, notify.DispatcherConfig{
		Workers:     cfg.Notify.Workers,
		QueueSize:   cfg.Notify.QueueSize,
		TaskTimeout: cfg.Notify.TaskTimeout,
	})
	if err != nil {
		return errors.Wrap(err, "create dispatcher")
	}
	dispatcher.Start()
	mailer, events, closeEvents := newNotifySenders(lg, cfg.Notify)
	notifier := notify.NewOrderNotifier(dispatcher, mailer, events, cfg.Notify.AdminEmail)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	variationRepo := postgres.NewVariationRepository(pool)

	// Domain services.
	coupons := coupon.NewEngine(couponRepo)
	variations := variation.NewService(productRepo, variationRepo, fileRemover)
	orders, err := order.NewService(postgres.NewTransactor(pool), orderRepo, coupons, variations, notifier, meter)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	tokens := auth.NewJWTAuthenticator([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer)
	codes := otp.NewVerifier(codeStore, notify.NewLogSMS(lg.Named("sms")))
	gateway := payment.NewRazorpayClient(payment.RazorpayConfig{
		BaseURL:   cfg.Payment.BaseURL,
		KeyID:     cfg.Payment.KeyID,
		KeySecret: cfg.Payment.KeySecret,
		Currency:  cfg.Payment.Currency,
	}, m.TracerProvider())

	h := handler.New(handler.Config{TokenTTL: cfg.Auth.TokenTTL}, handler.Deps{
		Orders:     orders,
		Coupons:    coupons,
		Variations: variations,
		Codes:      codes,
		Tokens:     tokens,
		Payments:   gateway,
	})

	// Router: health endpoints + API routes on one server. Route-aware
	// middleware runs inside the router so the matched pattern is known.
	router := chi.NewRouter()
	router.Use(httpmiddleware.LogRequests(), httpmiddleware.Labeler())
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/", h.Router())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", httpmiddleware.HeaderRequestID},
				ExposeHeaders:    []string{httpmiddleware.HeaderRequestID},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Instrument(serviceName, m),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		var err error
		if serr := server.Shutdown(shutdownCtx); serr != nil {
			err = multierr.Append(err, errors.Wrap(serr, "server shutdown"))
		}
		// Orders accepted before shutdown still get their notifications.
		if derr := dispatcher.Shutdown(shutdownCtx); derr != nil {
			err = multierr.Append(err, errors.Wrap(derr, "drain notifications"))
		}
		if cerr := closeEvents(); cerr != nil {
			err = multierr.Append(err, errors.Wrap(cerr, "close event publisher"))
		}
		healthSvc.Stop()
		shutdownErr <- err
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	if err := <-shutdownErr; err != nil {
		lg.Error("Shutdown incomplete", zap.Error(err))
	}
	return nil
}

func newFileRemover(cfg FilesConfig) (variation.FileRemover, error) {
	switch strings.ToLower(cfg.Backend) {
	case "minio":
		return files.NewMinIO(files.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
	case "none":
		return files.Nop{}, nil
	default:
		return files.NewLocal(cfg.Dir, cfg.URLPrefix), nil
	}
}

// newNotifySenders picks SMTP and Kafka when configured and log-only senders
// otherwise. The returned func closes the event publisher.
func newNotifySenders(lg *zap.Logger, cfg NotifyConfig) (notify.Mailer, notify.Publisher, func() error) {
	var mailer notify.Mailer = notify.NewLogMailer(lg.Named("mail"))
	if cfg.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
	}

	if cfg.Kafka.Brokers == "" {
		return mailer, notify.NewLogPublisher(lg.Named("events")), func() error { return nil }
	}
	kp := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	return mailer, kp, kp.Close
}
