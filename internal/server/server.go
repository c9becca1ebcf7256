// Package server wires configuration into a ready router. The HTTP server
// and the Lambda entrypoint share it.
package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/Shivanand-hulikatti/club-ride-registration/internal/auth"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/clock"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/config"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/content"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/database"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/handler"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/notify"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/ratelimit"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/repository"
	"github.com/Shivanand-hulikatti/club-ride-registration/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const pingTimeout = 3 * time.Second

// New builds the router and everything behind it. The returned cleanup
// releases connections and is safe to call once the router stops serving.
func New(ctx context.Context, cfg *config.Config) (*chi.Mux, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pool, err := OpenPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if pool != nil {
		closers = append(closers, pool.Close)
	}

	// store stays a nil interface without a pool; the service then answers
	// with model.ErrConfiguration.
	var store service.RegistrationStore
	if pool != nil {
		store = repository.NewRegistrationRepository(pool)
	} else {
		log.Println("database is not configured; registration endpoints will report configuration errors")
	}

	notifier, closeNotifier, err := newNotifier(cfg, pool)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if closeNotifier != nil {
		closers = append(closers, closeNotifier)
	}

	counter, closeCounter, err := newCounter(ctx, cfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if closeCounter != nil {
		closers = append(closers, closeCounter)
	}

	clk := clock.NewSystem()
	svc := service.NewRegistrationService(store, notifier,
		service.WithClock(clk),
		service.WithTimeouts(cfg.StoreTimeout, cfg.NotifyTimeout),
	)

	router := handler.NewRouter(handler.RouterConfig{
		Handler:  handler.NewRegistrationHandler(svc, auth.NewLinkTokens(cfg.CancelTokenSecret, cfg.CancelTokenTTL)),
		Verifier: auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience),
		Limits: handler.Limits{
			Capacity: ratelimit.New(counter, cfg.CapacityRateLimit, cfg.RateLimitWindow, clk),
			Cancel:   ratelimit.New(counter, cfg.CancelRateLimit, cfg.RateLimitWindow, clk),
			Register: ratelimit.New(counter, cfg.RegisterRateLimit, cfg.RateLimitWindow, clk),
		},
		AllowOrigin: cfg.CORSAllowedOrigin,
	})
	return router, cleanup, nil
}

// OpenPool returns a pool when database settings are present and nil
// otherwise. An unreachable server is logged, not fatal: the pool keeps
// dialling lazily and requests report a configuration error meanwhile.
func OpenPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	dbCfg := cfg.Database()
	if !dbCfg.Configured() {
		return nil, nil
	}
	pool, err := database.Open(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		log.Printf("database unreachable at startup, continuing: %v", err)
		return pool, nil
	}
	log.Println("✓ Connected to PostgreSQL")
	return pool, nil
}

// PromotionMailer returns the notifier that actually emails promoted riders,
// or a LogNotifier when mail, CMS or contact lookup is not set up.
func PromotionMailer(cfg *config.Config, pool *pgxpool.Pool) notify.Notifier {
	switch {
	case pool == nil:
		log.Println("promotion emails disabled: no database for contact lookup")
	case !cfg.MailConfigured():
		log.Println("promotion emails disabled: MAILERSEND_API_KEY or MAIL_FROM_EMAIL not set")
	case cfg.CMSGraphQLURL == "":
		log.Println("promotion emails disabled: CMS_GRAPHQL_URL not set")
	default:
		return notify.NewEmailNotifier(
			repository.NewContactRepository(pool),
			content.NewClient(cfg.CMSGraphQLURL, cfg.CMSAuthToken, cfg.NotifyTimeout),
			auth.NewLinkTokens(cfg.CancelTokenSecret, cfg.CancelTokenTTL),
			notify.NewMailerSend(cfg.MailerSendAPIKey, cfg.MailFromName, cfg.MailFromEmail),
			cfg.SiteURL,
		)
	}
	return notify.LogNotifier{}
}

func newNotifier(cfg *config.Config, pool *pgxpool.Pool) (service.Notifier, func(), error) {
	switch cfg.NotifyMode {
	case config.NotifyLog:
		return notify.LogNotifier{}, nil, nil
	case config.NotifyQueue:
		pub, err := notify.NewQueuePublisher(cfg.RabbitMQURL, cfg.NotifyQueue)
		if err != nil {
			return nil, nil, fmt.Errorf("notification queue: %w", err)
		}
		log.Printf("✓ Publishing promotions to queue %s", cfg.NotifyQueue)
		return pub, func() { _ = pub.Close() }, nil
	default:
		return PromotionMailer(cfg, pool), nil, nil
	}
}

func newCounter(ctx context.Context, cfg *config.Config) (ratelimit.Counter, func(), error) {
	if cfg.RateLimitStore != config.RateLimitNATS {
		return ratelimit.NewMemoryCounter(), nil, nil
	}

	nc, err := nats.Connect(cfg.NATSURL, nats.Name("club-ride-registration"))
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	counter, err := ratelimit.NewNATSCounter(ctx, js, cfg.NATSBucket, cfg.RateLimitWindow)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}
	log.Printf("✓ Rate limits stored in NATS bucket %s", cfg.NATSBucket)
	return counter, func() { _ = nc.Drain() }, nil
}
