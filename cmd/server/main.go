// Command server runs the companion accounts API: trial metering, magic-link
// account linking, entitlement resolution, and payment reconciliation.
//
// Startup order: config, logging, tracing, store (with migrations), outbound
// notifiers, HTTP router, then the trial reactivation sweeper. Shutdown
// drains in-flight requests before flushing the tracer.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"

	"github.com/topfivefriends/companion-accounts/internal/config"
	httpapi "github.com/topfivefriends/companion-accounts/internal/http"
	"github.com/topfivefriends/companion-accounts/internal/notify"
	"github.com/topfivefriends/companion-accounts/internal/observability"
	"github.com/topfivefriends/companion-accounts/internal/repo"
	"github.com/topfivefriends/companion-accounts/internal/sweep"
	"github.com/topfivefriends/companion-accounts/internal/sysutil"
)

func main() {
	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)
	stripe.Key = cfg.Stripe.SecretKey

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, httpapi.Version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("store open failed")
	}

	mailer := notify.NewResendMailer(cfg.ResendAPIKey, cfg.EmailFromDomain, cfg.Characters, cfg.NotifyTimeout)
	activator := notify.NewBackendActivator(cfg.NotifyTimeout)
	messenger := notify.NewTelegramMessenger(cfg.NotifyTimeout)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, mailer, activator, cfg)

	// Trial reactivation sweep runs for the life of the process.
	bumper := sweep.NewTrialBumper(db, messenger, cfg.Characters, cfg.SweepInterval, cfg.TrialBumpAfter, cfg.TrialBumpTopUp)
	go bumper.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", httpapi.Version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown failed")
	}
}
