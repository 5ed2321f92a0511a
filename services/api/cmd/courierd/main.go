package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"courierd/pkg/bus"
	"courierd/pkg/db"
	"courierd/pkg/mailer"
	"courierd/pkg/render"
	"courierd/pkg/telemetry"
	"courierd/services/api"
	"courierd/services/api/internal/config"
	"courierd/services/notifier"
	"courierd/services/reset"
	"courierd/services/tokens"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "courierd",
		Short:         "Templated notification delivery and credential-reset service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newWorkerCommand())
	cmd.AddCommand(newMigrateCommand())
	return cmd
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "courierd").Logger()
	if os.Getenv("COURIER_DEBUG") != "" {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}
	return logger
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and the delivery workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run only the delivery workers, without the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkers()
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := db.Open(ctx, cfg.DatabaseDSN)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer pool.Close()

			return migrateWithTimeout(ctx, pool)
		},
	}
}

// migrateWithTimeout bounds schema migrations so a wedged lock cannot hang
// startup indefinitely.
func migrateWithTimeout(ctx context.Context, pool *pgxpool.Pool) error {
	return db.WithTimeout(ctx, 2*time.Minute, func(ctx context.Context) error {
		return db.Migrate(ctx, pool)
	})
}

func serve() error {
	_ = godotenv.Load()
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, middleware, err := telemetry.Init(ctx, "courierd", logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown")
		}
	}()

	pool, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	if err := migrateWithTimeout(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var eventBus *bus.Bus
	if cfg.NATSURL != "" {
		eventBus, err = bus.New(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer eventBus.Close()

		if err := eventBus.EnsureStream("COURIER_JOBS", []string{"courier.jobs.>"}); err != nil {
			return fmt.Errorf("provision jobs stream: %w", err)
		}

		// Failed jobs are logged centrally off the bus, so operators see
		// them even when the workers run in separate processes.
		failedSub, err := eventBus.Subscribe(ctx, notifier.SubjectJobFailed, "courierd-failed-log",
			func(_ context.Context, data []byte) error {
				var event notifier.JobEvent
				if err := json.Unmarshal(data, &event); err != nil {
					return err
				}
				logger.Warn().
					Stringer("job", event.JobID).
					Str("kind", event.Kind).
					Int("attempts", event.Attempts).
					Str("cause", event.LastError).
					Msg("job failed permanently")
				return nil
			})
		if err != nil {
			return fmt.Errorf("subscribe failed events: %w", err)
		}
		defer failedSub.Close()
	} else {
		logger.Warn().Msg("COURIER_NATS_URL not set, lifecycle events disabled")
	}

	engine, err := render.New()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	queue, err := notifier.NewQueue(pool)
	if err != nil {
		return err
	}
	prod, err := notifier.NewProducer(queue, engine, eventBus)
	if err != nil {
		return err
	}

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}

	workers, err := notifier.NewPool(queue, engine, sender, eventBus, logger, notifier.PoolConfig{
		Workers:      cfg.Workers,
		PollInterval: cfg.PollInterval,
		LeaseFor:     cfg.LeaseTTL,
		FromAddress:  cfg.FromAddress,
	})
	if err != nil {
		return err
	}

	store, err := tokens.NewStore(pool)
	if err != nil {
		return err
	}
	directory, err := tokens.NewDirectory(pool)
	if err != nil {
		return err
	}

	flow, err := reset.New(store, directory, prod, cfg.ResetURL, logger)
	if err != nil {
		return err
	}

	handlers, err := api.New(flow, queue, directory, prod, api.Config{
		LoginLink:      cfg.LoginLink,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware(handlers.Routes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := workers.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("worker pool stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().
		Str("addr", cfg.Addr).
		Int("workers", cfg.Workers).
		Str("backend", cfg.DeliveryBackend).
		Msg("listening")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-workersDone
	return nil
}

func runWorkers() error {
	_ = godotenv.Load()
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	if err := migrateWithTimeout(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var eventBus *bus.Bus
	if cfg.NATSURL != "" {
		eventBus, err = bus.New(cfg.NATSURL)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer eventBus.Close()

		if err := eventBus.EnsureStream("COURIER_JOBS", []string{"courier.jobs.>"}); err != nil {
			return fmt.Errorf("provision jobs stream: %w", err)
		}
	}

	engine, err := render.New()
	if err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	queue, err := notifier.NewQueue(pool)
	if err != nil {
		return err
	}

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}

	workers, err := notifier.NewPool(queue, engine, sender, eventBus, logger, notifier.PoolConfig{
		Workers:      cfg.Workers,
		PollInterval: cfg.PollInterval,
		LeaseFor:     cfg.LeaseTTL,
		FromAddress:  cfg.FromAddress,
	})
	if err != nil {
		return err
	}

	logger.Info().
		Int("workers", cfg.Workers).
		Str("backend", cfg.DeliveryBackend).
		Msg("workers running")

	if err := workers.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newSender(cfg config.Config) (notifier.Sender, error) {
	switch cfg.DeliveryBackend {
	case "smtp":
		m, err := mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.FromAddress,
		})
		if err != nil {
			return nil, fmt.Errorf("smtp mailer: %w", err)
		}
		return notifier.NewSMTPSender(m)
	default:
		return notifier.NewHTTPSender(cfg.ProviderBaseURL, cfg.ProviderAPIKey), nil
	}
}
