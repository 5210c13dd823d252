// @title Gatherplan API
// @version 1.0
// @description Group event planning: invitations, preferences, venue scoring, voting and finalization.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gatherplan/config"
	_ "gatherplan/docs"
	"gatherplan/internal/adapters/auth"
	"gatherplan/internal/adapters/broker"
	"gatherplan/internal/adapters/email"
	"gatherplan/internal/adapters/reasoning"
	httpdelivery "gatherplan/internal/delivery/http"
	"gatherplan/internal/delivery/http/controllers"
	"gatherplan/internal/delivery/http/middleware"
	"gatherplan/internal/domain"
	"gatherplan/internal/outbox"
	"gatherplan/internal/repository/memory"
	"gatherplan/internal/repository/postgres"
	"gatherplan/internal/services"
	"gatherplan/internal/sweeper"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "err", err)
		os.Exit(1)
	}
}

type repositories struct {
	events       domain.EventRepository
	participants domain.ParticipantRepository
	waitlist     domain.WaitlistRepository
	options      domain.VenueOptionRepository
	votes        domain.VoteRepository
	outbox       domain.DomainEventRepository
	preferences  domain.PreferenceRepository
	series       domain.RecurringSeriesRepository
	users        domain.UserRepository
}

func openRepositories(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories, func() error, error) {
	if cfg.StoreDriver == "memory" {
		logger.Warn("using in-memory store; data is lost on restart")
		s := memory.New()
		return repositories{
			events:       s.Events(),
			participants: s.Participants(),
			waitlist:     s.Waitlist(),
			options:      s.VenueOptions(),
			votes:        s.Votes(),
			outbox:       s.DomainEvents(),
			preferences:  s.Preferences(),
			series:       s.RecurringSeries(),
			users:        s.Users(),
		}, func() error { return nil }, nil
	}

	db, err := postgres.Open(ctx, cfg.DBUrl)
	if err != nil {
		return repositories{}, nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return repositories{}, nil, fmt.Errorf("migrate: %w", err)
	}
	return postgresRepositories(db), db.Close, nil
}

func postgresRepositories(db *sql.DB) repositories {
	return repositories{
		events:       postgres.NewEventRepository(db),
		participants: postgres.NewParticipantRepository(db),
		waitlist:     postgres.NewWaitlistRepository(db),
		options:      postgres.NewVenueOptionRepository(db),
		votes:        postgres.NewVoteRepository(db),
		outbox:       postgres.NewDomainEventRepository(db),
		preferences:  postgres.NewPreferenceRepository(db),
		series:       postgres.NewRecurringSeriesRepository(db),
		users:        postgres.NewUserRepository(db),
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	repos, closeStore, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("close store", "err", err)
		}
	}()

	settings := services.Settings{
		ContextTimeout:        cfg.ContextTimeout,
		PreferenceWindow:      cfg.PreferenceWindow,
		RecommendationWindow:  cfg.RecommendationWindow,
		RecommendationTimeout: cfg.RecommendationTimeout,
		VotingWindow:          cfg.VotingWindow,
		DefaultDuration:       cfg.DefaultEventDuration,
	}

	lifecycle := services.NewLifecycleService(repos.events, repos.participants, repos.options, repos.votes, settings, logger)
	waitlist := services.NewWaitlistService(repos.events, repos.participants, repos.waitlist, settings, logger)
	roster := services.NewRosterService(repos.events, repos.participants, waitlist, settings, logger)
	registry := services.NewRegistryService(repos.events, repos.options, settings, logger)
	tally := services.NewTallyService(repos.events, repos.participants, repos.options, repos.votes, settings, logger)
	prefs := services.NewPreferenceService(repos.events, repos.participants, repos.preferences, settings, logger)
	recurring := services.NewRecurringExpander(repos.series, lifecycle, settings, logger)

	var engine domain.ReasoningEngine = reasoning.NoopEngine{}
	if cfg.ReasoningEngineURL != "" {
		engine = reasoning.NewHTTPEngine(&http.Client{}, cfg.ReasoningEngineURL)
	} else {
		logger.Warn("REASONING_ENGINE_URL not set; venue options are not scored automatically")
	}
	coordinator := services.NewRecommendationCoordinator(ctx, repos.events, repos.options, prefs, registry, lifecycle, engine, settings, logger)
	defer coordinator.Wait()

	sinks, closeSinks, err := buildSinks(cfg, repos, coordinator, logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	relay := outbox.New(repos.outbox, sinks, outbox.Config{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
	}, logger)

	sweep := sweeper.New(repos.events, lifecycle, recurring, sweeper.Config{
		Interval:    cfg.SweepInterval,
		BatchSize:   cfg.SweepBatchSize,
		Concurrency: cfg.SweepConcurrency,
	}, nil, logger)

	router := httpdelivery.NewRouter(httpdelivery.Controllers{
		Events: controllers.NewEventController(logger, lifecycle, recurring),
		Roster: controllers.NewRosterController(logger, roster, waitlist, prefs),
		Venues: controllers.NewVenueController(logger, registry, tally),
	}, auth.NewJWTVerifier(cfg.JWTSecret), logger)

	var handler http.Handler = router
	handler = middleware.LoggingMiddleware(logger, handler)
	handler = middleware.CORS(cfg.CORSAllowedOrigins, handler)
	handler = middleware.Recover(logger, handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		sweep.Start(gctx)
		return nil
	})
	g.Go(func() error {
		relay.Start(gctx)
		return nil
	})
	return g.Wait()
}

// buildSinks assembles the outbox consumers: the recommendation coordinator, email
// notifications, and the broker when AMQP_URL is set.
func buildSinks(cfg *config.Config, repos repositories, coordinator *services.RecommendationCoordinator, logger *slog.Logger) ([]outbox.Sink, func(), error) {
	mailer, err := email.NewMailer(email.MailerConfig{
		Provider:    cfg.EmailProvider,
		FromAddress: cfg.EmailFromAddress,
		FromName:    cfg.EmailFromName,
		SES: email.SESConfig{
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		},
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("mailer: %w", err)
	}
	renderer, err := email.NewTemplateRenderer()
	if err != nil {
		return nil, nil, fmt.Errorf("email templates: %w", err)
	}

	sinks := []outbox.Sink{
		{Name: "recommendation", Publisher: coordinator},
		{Name: "email", Publisher: services.NewNotificationService(repos.events, repos.participants, repos.options, repos.users, mailer, renderer, logger)},
	}
	closeFn := func() {}
	if cfg.AMQPURL != "" {
		pub, err := broker.Dial(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("broker: %w", err)
		}
		sinks = append(sinks, outbox.Sink{Name: "amqp", Publisher: pub})
		closeFn = func() {
			if err := pub.Close(); err != nil {
				logger.Error("close broker", "err", err)
			}
		}
	}
	return sinks, closeFn, nil
}
