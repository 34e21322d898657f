package events

import (
	"fmt"
	"io"

	"bookingsvc/internal/config"
	"bookingsvc/internal/domain"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// NewPublisher builds the reminder publisher selected by events.bus. awsCfg is
// only read for the eventbridge bus.
func NewPublisher(cfg *config.Config, awsCfg aws.Config, logger *zerolog.Logger) (domain.EventPublisher, io.Closer, error) {
	switch cfg.Events.Bus {
	case config.BusEventBridge:
		client := NewEventBridgeClient(awsCfg, cfg.AWS.Endpoint)
		return NewEventBridgePublisher(client, cfg.Events, logger), nopCloser{}, nil
	case config.BusRabbitMQ:
		p, err := NewRabbitMQPublisher(cfg.RabbitMQ, logger)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	case config.BusLocal:
		return NewEventBus(logger), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown event bus %q", cfg.Events.Bus)
	}
}
