// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api serves the votegate authentication gateway.
//
// It loads the environment, connects to PostgreSQL and Redis, applies
// pending migrations, wires the services and serves HTTP until SIGINT or
// SIGTERM, then drains in-flight requests.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/votegate/internal/api"
	"github.com/taibuivan/votegate/internal/auth"
	"github.com/taibuivan/votegate/internal/credential"
	"github.com/taibuivan/votegate/internal/enrollment"
	"github.com/taibuivan/votegate/internal/identity"
	"github.com/taibuivan/votegate/internal/notify"
	"github.com/taibuivan/votegate/internal/otp"
	"github.com/taibuivan/votegate/internal/platform/config"
	"github.com/taibuivan/votegate/internal/platform/constants"
	"github.com/taibuivan/votegate/internal/platform/migration"
	pgstore "github.com/taibuivan/votegate/internal/platform/postgres"
	redisstore "github.com/taibuivan/votegate/internal/platform/redis"
	"github.com/taibuivan/votegate/internal/platform/sec"
	"github.com/taibuivan/votegate/internal/session"
	"github.com/taibuivan/votegate/internal/sso"
)

func main() {
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
	}
	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Bool("strict_enrollment_gate", cfg.Session.StrictEnrollmentGate),
	)

	// Connections and migrations must finish within the startup budget.
	startup, cancelStartup := context.WithTimeout(context.Background(), startupTimeout)
	defer cancelStartup()

	pool, err := pgstore.NewPool(startup, cfg.DatabaseURL, pgstore.PoolSettings{
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	}, log)
	must(log, err, "connect to postgres")
	defer pool.Close()

	rdb, err := redisstore.NewClient(startup, cfg.RedisURL, redisstore.PoolSettings{
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, log)
	must(log, err, "connect to redis")
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error("redis_close_failed", slog.Any("error", err))
		}
	}()

	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	credentials, handlers, err := wire(cfg, pool, rdb, log)
	must(log, err, "wire services")

	lifetime, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(lifetime, cfg, log, credentials, handlers)

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.ListenAndServe() }()

	select {
	case <-lifetime.Done():
		log.Info("shutdown_signal_received")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("server_failed", slog.Any("error", err))
		}
	}
	stop()

	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("shutdown_failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("server_stopped")
}

// wire builds every domain service on top of the shared pool and client.
func wire(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, log *slog.Logger) (*credential.Service, api.Handlers, error) {
	transactor := pgstore.NewTxManager(pool)

	tokens, err := sec.NewTokenService(cfg.Token.AccessSecret, cfg.Token.RefreshSecret, cfg.Token.Issuer)
	if err != nil {
		return nil, api.Handlers{}, err
	}
	credentialService := credential.NewService(
		credential.NewRepository(pool),
		tokens,
		transactor,
		credential.Lifetimes{Access: cfg.Token.AccessTTL, Refresh: cfg.Token.RefreshTTL},
		log,
	)

	sessionService := session.NewService(
		session.NewRepository(pool),
		credentialService,
		transactor,
		session.Settings{TTL: cfg.Session.TTL, StrictEnrollmentGate: cfg.Session.StrictEnrollmentGate},
		log,
	)

	identityService := identity.NewService(identity.NewRepository(pool), log)

	verifier, err := sso.NewVerifier(cfg.SSO.SharedSecret, cfg.SSO.ClockSkew, sso.NewReplayGuard(rdb))
	if err != nil {
		return nil, api.Handlers{}, err
	}

	enrollmentService := enrollment.NewService(enrollment.Dependencies{
		Repository: enrollment.NewRepository(pool),
		Sessions:   sessionService,
		Profiles:   identityService,
		Selections: enrollment.NewQuestionSelections(rdb),
		Transactor: transactor,
	}, enrollment.Settings{
		BackupCodeCount: cfg.Enrollment.BackupCodeCount,
		QuestionCount:   cfg.Enrollment.SecurityQuestionCount,
		PassRatio:       cfg.Enrollment.SecurityPassRatio,
		Argon2id:        sec.DefaultArgon2idParams(),
	}, log)

	authService := auth.NewService(auth.Dependencies{
		Identities:  identityService,
		Sessions:    sessionService,
		Credentials: credentialService,
		Assertions:  verifier,
		Transactor:  transactor,
	}, log)

	cookies := auth.CookiePolicy{
		Secure:     cfg.CookieSecure,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
		SessionTTL: constants.SessionCookieTTL,
	}

	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		"postgres": func(context context.Context) error { return pgstore.Ping(context, pool) },
		"redis":    func(context context.Context) error { return redisstore.Ping(context, rdb) },
	}, log)

	return credentialService, api.Handlers{
		Liveness:   liveness,
		Readiness:  readiness,
		Auth:       auth.NewHandler(authService, cookies, cfg.SSO.FailureRedirectURL),
		OTP:        otp.NewHandler(newOTPService(cfg, pool, rdb, transactor, sessionService, log)),
		Enrollment: enrollment.NewHandler(enrollmentService),
	}, nil
}

const startupTimeout = 30 * time.Second

func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("app", constants.AppName), slog.String("version", constants.AppVersion))
}

// newOTPService picks a provider per channel. Unconfigured providers fall back
// to the log notifier; a Twilio Verify service replaces local SMS codes.
func newOTPService(cfg *config.Config, pool *pgxpool.Pool, rdb *redis.Client, transactor pgstore.Transactor, sessions *session.Service, log *slog.Logger) *otp.Service {
	client := &http.Client{Timeout: constants.NotifierTimeout}

	var email otp.Notifier = notify.NewLogNotifier("email", log)
	if cfg.SendGrid.APIKey != "" {
		email = notify.NewSendGrid(notify.SendGridConfig{
			APIKey:    cfg.SendGrid.APIKey,
			FromEmail: cfg.SendGrid.FromEmail,
			BaseURL:   cfg.SendGrid.BaseURL,
		}, client)
	}

	twilio := notify.TwilioConfig{
		AccountSID:       cfg.Twilio.AccountSID,
		AuthToken:        cfg.Twilio.AuthToken,
		PhoneNumber:      cfg.Twilio.PhoneNumber,
		VerifyServiceSID: cfg.Twilio.VerifyServiceSID,
		APIBaseURL:       cfg.Twilio.APIBaseURL,
		VerifyBaseURL:    cfg.Twilio.VerifyBaseURL,
	}
	twilioReady := twilio.AccountSID != "" && twilio.AuthToken != ""

	var sms otp.Notifier = notify.NewLogNotifier("sms", log)
	if twilioReady && twilio.PhoneNumber != "" {
		sms = notify.NewTwilioSMS(twilio, client)
	}

	var phone otp.PhoneVerifier
	if twilioReady && twilio.VerifyServiceSID != "" {
		phone = notify.NewTwilioVerify(twilio, client)
	}

	log.Info("otp_providers_selected",
		slog.Bool("sendgrid", cfg.SendGrid.APIKey != ""),
		slog.Bool("twilio_sms", twilioReady && twilio.PhoneNumber != ""),
		slog.Bool("twilio_verify", phone != nil),
	)

	return otp.NewService(otp.Dependencies{
		Repository: otp.NewRepository(pool),
		Sessions:   sessions,
		Transactor: transactor,
		Limiter:    otp.NewIssueLimiter(rdb, cfg.OTP.IssueLimit, cfg.OTP.IssueWindow),
		Email:      email,
		SMS:        sms,
		Phone:      phone,
	}, otp.Settings{
		TTL:         cfg.OTP.TTL,
		MaxAttempts: cfg.OTP.MaxAttempts,
		Length:      cfg.OTP.Length,
		ExposeCode:  cfg.IsDevelopment(),
	}, log)
}

// must exits on a startup failure.
func must(log *slog.Logger, err error, step string) {
	if err != nil {
		log.Error("startup_failed",
			slog.String("step", step),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
