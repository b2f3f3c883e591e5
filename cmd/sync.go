package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"example.com/ticketing/services/events/config"
	"example.com/ticketing/services/events/internal/messaging"
	"example.com/ticketing/services/events/internal/metrics"
	"example.com/ticketing/services/events/internal/provider"
	"example.com/ticketing/services/events/internal/repositories"
	"example.com/ticketing/services/events/internal/search"
	"example.com/ticketing/services/events/internal/services"
	"example.com/ticketing/services/events/internal/tracing"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var syncOnce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Start the provider sync worker",
	Long: `Start the background worker that periodically fetches the external
provider's event catalog and reconciles it into the database`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&syncOnce, "once", false, "run a single sync and exit")
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return err
	}

	// Configure logging
	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Initialize database connections
	db, readOnlyDB, err := initDatabases(cfg)
	if err != nil {
		return err
	}

	// Initialize tracer
	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = &tracing.NewRelicTracer{}
	}

	// Initialize Elasticsearch client
	elasticClient, err := search.NewElasticClient(cfg.Elastic)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search indexing")
		elasticClient = nil
	}

	// Initialize the sync report publisher
	publisher, err := messaging.NewServiceBusPublisher(cfg.Azure)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Service Bus publisher, continuing without report publication")
		publisher = nil
	}

	// Initialize metrics
	metricsCollector := metrics.NewMetrics()

	// Initialize the sync pipeline
	feedClient := provider.NewClient(cfg.Provider)
	eventRepo := repositories.NewEventRepository(db, readOnlyDB)
	zoneRepo := repositories.NewZoneRepository(db, readOnlyDB)
	syncService := services.NewSyncService(
		feedClient, eventRepo, zoneRepo, elasticClient, publisher, metricsCollector, tracer)

	if syncOnce {
		_, err := syncService.Run(ctx)
		return err
	}

	// Create an error group to manage goroutines
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Dur("interval", cfg.Sync.Interval).Msg("Starting provider sync scheduler")

		// Create a scheduler
		scheduler, err := gocron.NewScheduler()
		if err != nil {
			return err
		}

		// Singleton mode keeps a single sync in flight at a time; overlapping
		// runs would race on the same provider ids.
		_, err = scheduler.NewJob(
			gocron.DurationJob(cfg.Sync.Interval),
			gocron.NewTask(func() {
				if _, err := syncService.Run(ctx); err != nil {
					log.Error().Err(err).Msg("Sync run failed")
				}
			}),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return err
		}

		// Start the scheduler
		scheduler.Start()

		// Wait for context cancellation
		<-ctx.Done()

		// Shutdown the scheduler
		return scheduler.Shutdown()
	})

	// Wait for any goroutine to exit
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Sync worker error")
		return err
	}

	log.Info().Msg("Sync worker shutting down gracefully")
	return nil
}
