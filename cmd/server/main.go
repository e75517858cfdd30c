// Server runs the booking intake JSON API on HTTP_ADDR and the gRPC health service on GRPC_ADDR.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"booking-intake/backend/internal/booking/form"
	"booking-intake/backend/internal/booking/publisher"
	"booking-intake/backend/internal/config"
	"booking-intake/backend/internal/db"
	"booking-intake/backend/internal/devotp"
	"booking-intake/backend/internal/health"
	"booking-intake/backend/internal/intake"
	"booking-intake/backend/internal/intake/handler"
	"booking-intake/backend/internal/logging"
	"booking-intake/backend/internal/messaging/sms"
	"booking-intake/backend/internal/metrics"
	"booking-intake/backend/internal/otp"
	"booking-intake/backend/internal/otp/store"
	"booking-intake/backend/internal/policy/engine"
	"booking-intake/backend/internal/security"
	"booking-intake/backend/internal/server"
	"booking-intake/backend/internal/telemetry"
	telemetryotel "booking-intake/backend/internal/telemetry/otel"
	"booking-intake/backend/internal/wizard"
)

const (
	serviceName     = "booking-intake"
	shutdownTimeout = 10 * time.Second
	healthInterval  = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Insecure:    cfg.OTLPInsecure,
	}, logger.Named("otel"))
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()
	events := telemetryotel.NewEventEmitter(providers.LoggerProvider)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	checker := health.NewChecker(logger.Named("health"))

	otpStore, closeStore, err := openStore(ctx, cfg, checker)
	if err != nil {
		return err
	}
	defer closeStore()

	dispatcher, outbox, err := newDispatcher(cfg, logger)
	if err != nil {
		return err
	}

	creator, closeCreator, err := newCreator(cfg, logger)
	if err != nil {
		return err
	}
	defer closeCreator()

	policy, err := newPolicy(ctx, cfg, logger)
	if err != nil {
		return err
	}
	checker.Register("policy", health.PolicyProbe(policy))

	cal := form.NewClinicCalendar(cfg.ClinicLocation(), form.ParseWeekdays(cfg.ClinicClosedWeekdays), nil)
	steps := wizard.DefaultSteps()
	mgr, err := intake.NewManager(intake.Config{
		Store:      otpStore,
		Dispatcher: dispatcher,
		Creator:    creator,
		Validator:  form.NewValidator(cal),
		OTP: otp.Options{
			ExpiryMinutes: cfg.OTPExpiryMinutes,
			VerifyDelay:   cfg.VerifyDelay(),
			Provider:      cfg.SMSProvider,
			Recorder:      m,
			Events:        events,
		},
		Steps:          steps,
		Policy:         intake.PolicyFromGate(policy),
		WizardRecorder: m,
		Gauge:          m,
		SessionTTL:     cfg.FormSessionTTL,
		Today:          cal.Today,
	}, logger.Named("intake"))
	if err != nil {
		return err
	}
	stopSweeper, err := mgr.StartSweeper(cfg.FormSweepSchedule)
	if err != nil {
		return fmt.Errorf("sweeper: %w", err)
	}
	defer stopSweeper()

	tokens, err := security.NewTokenProvider(cfg.AppSecret, security.DefaultIssuer, cfg.FormSessionTTL)
	if err != nil {
		return fmt.Errorf("tokens: %w", err)
	}

	routerDeps := server.RouterDeps{
		API:            handler.New(mgr, tokens, steps, logger.Named("http")).Routes(),
		Health:         checker,
		Gatherer:       reg,
		AllowedOrigins: cfg.AllowedOrigins(),
		Logger:         logger.Named("http"),
	}
	if outbox != nil {
		routerDeps.DevOTP = outbox
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(routerDeps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv := server.NewGRPCServer(server.Deps{Health: checker, Events: events, Logger: logger.Named("grpc")})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	go checker.Run(ctx, healthInterval)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr), zap.String("sms_provider", cfg.SMSProvider), zap.String("otp_store", cfg.OTPStore))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http serve: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("server failed", zap.Error(serveErr))
	}

	checker.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	grpcSrv.GracefulStop()

	// Let in-flight async telemetry emits finish before the providers close.
	time.Sleep(telemetry.ShutdownDrainDuration)
	providerCtx, providerCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer providerCancel()
	if err := providers.Shutdown(providerCtx); err != nil {
		logger.Warn("otel shutdown", zap.Error(err))
	}
	logger.Info("stopped")
	return serveErr
}

func openStore(ctx context.Context, cfg *config.Config, checker *health.Checker) (otp.Store, func(), error) {
	switch cfg.OTPStore {
	case config.OTPStoreRedis:
		client := store.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)
		s := store.NewRedisStore(client, "")
		checker.Register("otp_store", health.PingProbe(s))
		return s, func() { _ = client.Close() }, nil
	case config.OTPStorePostgres:
		conn, err := db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		s := store.NewPostgresStore(conn)
		checker.Register("otp_store", health.PingProbe(s))
		return s, func() { _ = conn.Close() }, nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}

func newDispatcher(cfg *config.Config, logger *zap.Logger) (otp.Dispatcher, *devotp.Outbox, error) {
	switch cfg.SMSProvider {
	case config.SMSProviderDev:
		logger.Warn("dev OTP mode: codes are kept in memory and served on GET /dev/otp")
		o := devotp.NewOutbox(logger.Named("devotp"))
		return o, o, nil
	case config.SMSProviderTwilio:
		c, err := sms.NewTwilioClient(sms.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			FromPhone:  cfg.TwilioFromPhone,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("twilio: %w", err)
		}
		return c, nil, nil
	default:
		if cfg.SMSAPIKey == "" {
			logger.Warn("SMS_API_KEY is empty; every OTP dispatch will fail")
		}
		return sms.NewSMSCannonClient(sms.SMSCannonConfig{
			APIKey:     cfg.SMSAPIKey,
			SenderID:   cfg.SMSSenderID,
			TemplateID: cfg.SMSTemplateID,
			BaseURL:    cfg.SMSBaseURL,
		}), nil, nil
	}
}

func newCreator(cfg *config.Config, logger *zap.Logger) (publisher.Creator, func(), error) {
	var (
		next    publisher.Creator
		closeFn = func() {}
	)
	if brokers := cfg.BookingKafkaBrokersList(); len(brokers) > 0 {
		p, err := publisher.NewKafkaPublisher(brokers, cfg.BookingKafkaTopic, logger.Named("publisher"))
		if err != nil {
			return nil, nil, err
		}
		next = p
		closeFn = func() { _ = p.Close() }
	} else {
		logger.Info("BOOKING_KAFKA_BROKERS is empty; bookings are only logged")
		next = publisher.NewLogPublisher(logger.Named("publisher"))
	}
	return publisher.NewConfirmationMailer(next, publisher.MailConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
		Sandbox:   !cfg.IsProduction(),
	}, logger.Named("mailer")), closeFn, nil
}

func newPolicy(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*engine.OPAEvaluator, error) {
	var extra map[string]string
	if cfg.BookingPolicyPath != "" {
		var err error
		extra, err = engine.LoadModules(cfg.BookingPolicyPath)
		if err != nil {
			return nil, fmt.Errorf("policy: %w", err)
		}
		logger.Info("loaded booking policy modules", zap.Int("count", len(extra)))
	}
	ev, err := engine.NewOPAEvaluator(ctx, extra, logger.Named("policy"))
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}
	return ev, nil
}
