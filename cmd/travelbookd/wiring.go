package main

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/travelbook/internal/gateway/chapa"
	"github.com/MarkoPoloResearchLab/travelbook/internal/notify"
	"github.com/MarkoPoloResearchLab/travelbook/internal/oplog"
	"github.com/MarkoPoloResearchLab/travelbook/internal/secrets"
	"github.com/MarkoPoloResearchLab/travelbook/pkg/travel"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// application owns the process-wide resources shared by every subcommand.
type application struct {
	cfg     *runtimeConfig
	logger  *zap.Logger
	store   travel.Store
	closers []func()
	aws     *aws.Config
}

func newApplication(ctx context.Context, cfg *runtimeConfig) (*application, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	app := &application{cfg: cfg, logger: logger}
	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	app.store = store
	app.closers = append(app.closers, cleanup)
	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (app *application) Close() {
	for index := len(app.closers) - 1; index >= 0; index-- {
		app.closers[index]()
	}
	_ = app.logger.Sync()
}

func (app *application) awsConfig(ctx context.Context) (aws.Config, error) {
	if app.aws != nil {
		return *app.aws, nil
	}
	loaded, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("aws config: %w", err)
	}
	app.aws = &loaded
	return loaded, nil
}

func (app *application) operationLogger() travel.Option {
	return travel.WithOperationLogger(oplog.New(app.logger))
}

func (app *application) gateway(ctx context.Context) (*chapa.Client, error) {
	if err := app.cfg.requireGatewaySecret(); err != nil {
		return nil, err
	}
	secretKey := app.cfg.ChapaSecretKey
	if secretKey == "" {
		awsCfg, err := app.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		resolved, err := secrets.NewResolver(secretsmanager.NewFromConfig(awsCfg)).Resolve(ctx, app.cfg.ChapaSecretRef)
		if err != nil {
			return nil, fmt.Errorf("chapa secret: %w", err)
		}
		secretKey = resolved
	}
	return chapa.NewClient(chapa.Config{
		BaseURL:   app.cfg.ChapaBaseURL,
		SecretKey: secretKey,
		Timeout:   app.cfg.GatewayTimeout,
	})
}

func (app *application) sender(ctx context.Context) (notify.Sender, error) {
	switch app.cfg.MailSender {
	case mailSenderSMTP:
		return notify.NewSMTPSender(app.cfg.SMTP)
	case mailSenderSES:
		awsCfg, err := app.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		return notify.NewSESSender(ses.NewFromConfig(awsCfg), app.cfg.FromEmail)
	default:
		return notify.NewLogSender(app.logger), nil
	}
}

func (app *application) sqsClient(ctx context.Context) (*sqs.Client, error) {
	awsCfg, err := app.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// notifier returns the queue the services publish to. The in-memory dispatcher is
// drained when the application closes.
func (app *application) notifier(ctx context.Context) (travel.Notifier, error) {
	if app.cfg.QueueMode == queueModeSQS {
		client, err := app.sqsClient(ctx)
		if err != nil {
			return nil, err
		}
		return notify.NewSQSQueue(client, app.cfg.SQSQueueURL)
	}
	sender, err := app.sender(ctx)
	if err != nil {
		return nil, err
	}
	dispatcher, err := notify.NewDispatcher(sender, app.logger, notify.DispatcherConfig{Workers: app.cfg.NotifyWorkers})
	if err != nil {
		return nil, err
	}
	dispatcher.Start()
	app.closers = append(app.closers, dispatcher.Close)
	return dispatcher, nil
}

func (app *application) paymentService(ctx context.Context, notifier travel.Notifier) (*travel.PaymentService, error) {
	gateway, err := app.gateway(ctx)
	if err != nil {
		return nil, err
	}
	return travel.NewPaymentService(app.store, gateway, notifier, travel.PaymentConfig{
		CallbackURL: app.cfg.CallbackURL(),
	}, app.operationLogger())
}

func (app *application) deduper() (notify.Deduper, error) {
	if app.cfg.RedisURL == "" {
		return nil, nil
	}
	options, err := redis.ParseURL(app.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(options)
	app.closers = append(app.closers, func() { _ = client.Close() })
	return notify.NewRedisDeduper(client, 0, 0), nil
}
