package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bookingsvc/internal/config"
	"bookingsvc/internal/models"
	"bookingsvc/internal/tracing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// EventBridgeAPI is the subset of the EventBridge client the publisher uses.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher puts ReminderDue events on an EventBridge bus.
type EventBridgePublisher struct {
	api        EventBridgeAPI
	source     string
	detailType string
	busName    string
	logger     *zerolog.Logger
}

func NewEventBridgePublisher(api EventBridgeAPI, cfg config.EventsConfig, logger *zerolog.Logger) *EventBridgePublisher {
	if cfg.Source == "" {
		cfg.Source = models.ReminderSource
	}
	if cfg.DetailType == "" {
		cfg.DetailType = models.ReminderDetailType
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &EventBridgePublisher{
		api:        api,
		source:     cfg.Source,
		detailType: cfg.DetailType,
		busName:    cfg.EventBusName,
		logger:     logger,
	}
}

// NewEventBridgeClient builds the SDK client, honouring an endpoint override.
func NewEventBridgeClient(awsCfg aws.Config, endpoint string) *eventbridge.Client {
	return eventbridge.NewFromConfig(awsCfg, func(o *eventbridge.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
}

// Publish sends one event. A partially failed PutEvents call is an error.
func (p *EventBridgePublisher) Publish(ctx context.Context, reminder models.ReminderDue) (err error) {
	ctx, done := tracing.Subsegment(ctx, "ReminderPublisher.Publish")
	defer func() { done(err) }()

	detail, err := json.Marshal(reminder)
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}

	entry := types.PutEventsRequestEntry{
		Source:     aws.String(p.source),
		DetailType: aws.String(p.detailType),
		Detail:     aws.String(string(detail)),
	}
	if p.busName != "" {
		entry.EventBusName = aws.String(p.busName)
	}

	out, err := p.api.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("eventbridge put events (%s): %w", apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("eventbridge put events: %w", err)
	}

	if out.FailedEntryCount > 0 {
		code, msg := "unknown", ""
		if len(out.Entries) > 0 {
			code = aws.ToString(out.Entries[0].ErrorCode)
			msg = aws.ToString(out.Entries[0].ErrorMessage)
		}
		return fmt.Errorf("eventbridge rejected reminder for booking %s: %s %s", reminder.BookingID, code, msg)
	}

	if len(out.Entries) > 0 {
		p.logger.Debug().
			Str("event_id", aws.ToString(out.Entries[0].EventId)).
			Str("booking_id", reminder.BookingID).
			Msg("reminder put on event bus")
	}
	return nil
}
