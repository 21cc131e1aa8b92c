package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/travelbook/internal/httpapi"
	"github.com/MarkoPoloResearchLab/travelbook/internal/notify"
	"github.com/MarkoPoloResearchLab/travelbook/internal/sweeper"
	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	flagOlderThan = "older-than"
	flagLimit     = "limit"
	seedHostID    = "demo_host"
	seedSlugTag   = "seed"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "travelbookd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	cmd := &cobra.Command{
		Use:           "travelbookd",
		Short:         "Travel listing and booking service with Chapa payments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL URL, sqlite:// URL or sqlite file path")
	flags.String(flagStoreDriver, storeDriverGORM, "store implementation: gorm or pgx")
	flags.Bool(flagAutoMigrate, false, "create or migrate the schema on startup (always on for sqlite)")
	flags.String(flagChapaBaseURL, defaultChapaBaseURL, "Chapa API base URL")
	flags.String(flagChapaSecretKey, "", "Chapa secret key")
	flags.String(flagChapaSecretRef, "", "Secrets Manager reference for the Chapa key, as secret-id#json-field")
	flags.Duration(flagGatewayTimeout, defaultGatewayTimeout, "gateway request timeout")
	flags.String(flagSiteURL, defaultSiteURL, "public site URL used to build the payment callback")
	flags.String(flagFromEmail, defaultFromEmail, "sender address for notifications")
	flags.String(flagMailSender, mailSenderLog, "mail transport: log, smtp or ses")
	flags.String(flagSMTPHost, "", "SMTP relay host")
	flags.Int(flagSMTPPort, 587, "SMTP relay port")
	flags.String(flagSMTPUsername, "", "SMTP username")
	flags.String(flagSMTPPassword, "", "SMTP password")
	flags.String(flagQueueMode, queueModeMemory, "notification queue: memory or sqs")
	flags.String(flagSQSQueueURL, "", "SQS queue URL for notifications")
	flags.String(flagRedisURL, "", "Redis URL for notification dedupe (worker)")
	flags.Int(flagNotifyWorkers, 0, "in-memory notification workers")

	cmd.AddCommand(newServeCommand(cfg), newWorkerCommand(cfg), newReconcileCommand(cfg), newSeedCommand(cfg))
	return cmd
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func newServeCommand(cfg *runtimeConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and sweep stale payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().String(flagListenAddr, ":8080", "HTTP listen address")
	cmd.Flags().String(flagAllowedOrigins, "", "comma-separated list of allowed CORS origins")
	cmd.Flags().String(flagJWTSigningKey, "", "TAuth JWT signing key (required)")
	cmd.Flags().String(flagJWTIssuer, "tauth", "expected JWT issuer")
	cmd.Flags().String(flagJWTCookieName, "app_session", "JWT cookie name")
	cmd.Flags().Duration(flagSweepInterval, time.Minute, "pending payment sweep interval, 0 disables the sweep")
	cmd.Flags().Duration(flagSweepMinAge, 10*time.Minute, "minimum age of a pending payment before it is swept")
	cmd.Flags().Int(flagSweepBatch, 100, "payments examined per sweep")
	return cmd
}

func runServe(ctx context.Context, cfg *runtimeConfig) error {
	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	notifier, err := app.notifier(ctx)
	if err != nil {
		return fmt.Errorf("notifier init: %w", err)
	}
	payments, err := app.paymentService(ctx, notifier)
	if err != nil {
		return fmt.Errorf("payment service init: %w", err)
	}
	bookings, err := travel.NewBookingService(app.store, payments, notifier, app.operationLogger())
	if err != nil {
		return fmt.Errorf("booking service init: %w", err)
	}
	listings, err := travel.NewListingService(app.store, app.operationLogger())
	if err != nil {
		return fmt.Errorf("listing service init: %w", err)
	}

	if cfg.SweepInterval > 0 {
		paymentSweeper, err := sweeper.New(payments, sweeper.Config{
			Interval: cfg.SweepInterval,
			MinAge:   cfg.SweepMinAge,
			Batch:    cfg.SweepBatch,
		}, app.logger)
		if err != nil {
			return err
		}
		if err := paymentSweeper.Start(ctx); err != nil {
			return fmt.Errorf("sweeper start: %w", err)
		}
		defer func() {
			if stopErr := paymentSweeper.Stop(); stopErr != nil {
				app.logger.Warn("sweeper stop", zap.Error(stopErr))
			}
		}()
	}

	return httpapi.Run(ctx, cfg.HTTP, httpapi.Services{
		Listings: listings,
		Bookings: bookings,
		Payments: payments,
	}, app.logger)
}

func newWorkerCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued notifications from SQS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			return runWorker(ctx, cfg)
		},
	}
}

func runWorker(ctx context.Context, cfg *runtimeConfig) error {
	if cfg.QueueMode != queueModeSQS {
		return fmt.Errorf("worker requires --%s=%s", flagQueueMode, queueModeSQS)
	}
	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	client, err := app.sqsClient(ctx)
	if err != nil {
		return err
	}
	sender, err := app.sender(ctx)
	if err != nil {
		return fmt.Errorf("sender init: %w", err)
	}
	deduper, err := app.deduper()
	if err != nil {
		return err
	}
	consumer, err := notify.NewSQSConsumer(client, cfg.SQSQueueURL, sender, deduper, app.logger)
	if err != nil {
		return err
	}
	return consumer.Run(ctx)
}

func newReconcileCommand(cfg *runtimeConfig) *cobra.Command {
	var (
		olderThan time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Verify stale pending payments once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			return runReconcile(ctx, cfg, olderThan, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&olderThan, flagOlderThan, 10*time.Minute, "only payments pending longer than this")
	cmd.Flags().IntVar(&limit, flagLimit, 100, "maximum payments to verify")
	return cmd
}

func runReconcile(ctx context.Context, cfg *runtimeConfig, olderThan time.Duration, limit int, out io.Writer) error {
	app, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	notifier, err := app.notifier(ctx)
	if err != nil {
		return fmt.Errorf("notifier init: %w", err)
	}
	payments, err := app.paymentService(ctx, notifier)
	if err != nil {
		return fmt.Errorf("payment service init: %w", err)
	}
	paymentSweeper, err := sweeper.New(payments, sweeper.Config{MinAge: olderThan, Batch: limit}, app.logger)
	if err != nil {
		return err
	}
	result, err := paymentSweeper.RunOnce(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "examined=%d succeeded=%d failed=%d unavailable=%d\n",
		result.Examined, result.Succeeded, result.Failed, result.Unavailable)
	return nil
}

// seedListing is a sample catalogue entry for local development.
type seedListing struct {
	title       string
	description string
	location    string
	price       string
}

var seedListings = []seedListing{
	{title: "Cozy Apartment in Lagos", description: "A comfortable apartment close to the beach.", location: "Lagos, Nigeria", price: "75.00"},
	{title: "Luxury Villa in Accra", description: "A spacious villa with a private pool.", location: "Accra, Ghana", price: "150.00"},
	{title: "Safari Lodge in Nairobi", description: "Lodge on the edge of the national park.", location: "Nairobi, Kenya", price: "300.00"},
	{title: "Beach House in Cape Town", description: "Ocean views and direct beach access.", location: "Cape Town, South Africa", price: "100.00"},
	{title: "Budget Room in Enugu", description: "A clean room for short stays.", location: "Enugu, Nigeria", price: "50.00"},
}

func newSeedCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Populate the catalogue with sample listings",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd)
			defer stop()
			app, err := newApplication(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()
			listings, err := travel.NewListingService(app.store,
				app.operationLogger(),
				travel.WithSlugSuffixGenerator(func() string { return seedSlugTag }),
			)
			if err != nil {
				return err
			}
			created, err := seedCatalogue(ctx, listings, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d listings\n", created)
			return nil
		},
	}
}

// listingCreator is the part of travel.ListingService the seed command uses.
type listingCreator interface {
	Create(ctx context.Context, hostID travel.UserID, input travel.ListingInput) (travel.Listing, error)
}

// seedCatalogue is idempotent: listings whose slug already exists are reported and skipped.
func seedCatalogue(ctx context.Context, listings listingCreator, out io.Writer) (int, error) {
	hostID, err := travel.NewUserID(seedHostID)
	if err != nil {
		return 0, err
	}
	created := 0
	for _, sample := range seedListings {
		price, err := travel.ParseAmountCents(sample.price)
		if err != nil {
			return created, err
		}
		listing, err := listings.Create(ctx, hostID, travel.ListingInput{
			Title:         sample.title,
			Description:   sample.description,
			Location:      sample.location,
			PricePerNight: price,
		})
		if errors.Is(err, travel.ErrDuplicateSlug) {
			fmt.Fprintf(out, "%s already exists\n", sample.title)
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed %q: %w", sample.title, err)
		}
		created++
		fmt.Fprintf(out, "created %s\n", listing.Slug)
	}
	return created, nil
}
