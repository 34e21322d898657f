package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"bookingsvc/internal/config"
	"bookingsvc/internal/events"
	"bookingsvc/internal/logging"
	"bookingsvc/internal/notifier"
	"bookingsvc/internal/tracing"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

func main() {
	handler, cleanup, err := setup(context.Background())
	if err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
	defer cleanup()

	lambda.Start(handler.HandleDynamoDBEvent)
}

// setup wires the notifier once per Lambda container. CONFIG_PATH is optional;
// environment variables alone are enough.
func setup(ctx context.Context) (*notifier.ExpiryNotifier, func(), error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(baseLogger, "notifier-main")

	if err := tracing.Configure(cfg.Tracing, cfg.App.Version); err != nil {
		return nil, nil, err
	}

	var awsCfg aws.Config
	if cfg.Events.Bus == config.BusEventBridge {
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.AWS.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
		}
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("load aws config: %w", err)
		}
		tracing.InstrumentAWS(&awsCfg)
	}

	publisher, pubCloser, err := events.NewPublisher(cfg, awsCfg, logging.Component(baseLogger, "reminder-publisher"))
	if err != nil {
		return nil, nil, fmt.Errorf("init event publisher: %w", err)
	}

	logger.Info().
		Str("event_bus", cfg.Events.Bus).
		Bool("partial_batch_response", cfg.Events.PartialBatchResponse).
		Msg("expiry notifier ready")

	cleanup := func() {
		_ = pubCloser.Close()
		if closer != nil {
			_ = closer.Close()
		}
	}
	return notifier.NewExpiryNotifier(publisher, cfg.Events, logging.Component(baseLogger, "expiry-notifier")), cleanup, nil
}
