package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"authcore.dev/internal/config"
	"authcore.dev/internal/httpapi"
	"authcore.dev/internal/identity"
	"authcore.dev/internal/notify"
	"authcore.dev/internal/obs"
	"authcore.dev/internal/store/pg"
	"authcore.dev/internal/stream"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg := config.MustLoad()

	obs.InitLogger(cfg.AppEnv)
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open db")
	}
	defer store.Close()

	var nc *nats.Conn
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			log.Fatal().Err(err).Msg("connect nats")
		}
		defer nc.Drain()
	}

	var notifier identity.Notifier
	if nc != nil {
		notifier = notify.NewNATSSender(nc, cfg.NATSEmailSubject, log)
	} else {
		notifier = notify.NewLogSender(log)
	}

	events := stream.New(stream.WithNATS(nc, cfg.NATSEventSubject), stream.WithLogger(log))

	tokens, err := identity.NewTokenService(store.Sessions(), cfg.JWTSecret, cfg.JWTIssuer,
		identity.WithAccessTTL(cfg.AccessTTL),
		identity.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("init token service")
	}

	svc := identity.NewService(store, tokens,
		identity.WithNotifier(notifier),
		identity.WithPublisher(events),
		identity.WithLogger(log),
		identity.WithBcryptCost(cfg.BcryptCost),
		identity.WithVerificationTTL(cfg.VerificationTTL),
		identity.WithResetTTL(cfg.ResetTTL),
		identity.WithAbilityConfig(identity.AbilityConfig{
			SuperAdminRole:  cfg.SuperAdminRole,
			TenantAdminRole: cfg.TenantAdminRole,
		}),
	)

	bootCtx, cancelBoot := context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.EnsurePermissions(bootCtx, identity.BaselinePermissions()); err != nil {
		log.Fatal().Err(err).Msg("ensure permission catalog")
	}
	cancelBoot()

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: store.DB()}, version)

	handler := api.Handler()
	handler = httpapi.MaxBodyBytes(handler, 1<<20)
	handler = httpapi.RateLimit(handler, cfg.RateLimitBurst, cfg.RateLimitPerSecond)
	handler = httpapi.CORS(handler)
	handler = httpapi.SecurityHeaders(handler)
	handler = httpapi.Logging(handler)
	handler = httpapi.RequestID(handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting authcore-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Info().Msg("stopped")
}
