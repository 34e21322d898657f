package notifier

import (
	"context"

	"bookingsvc/internal/models"
	"bookingsvc/internal/tracing"

	"github.com/aws/aws-lambda-go/events"
)

// FromDynamoDBEvent converts a DynamoDB Streams batch into change records.
// Only string and number attributes of the old image are carried over.
func FromDynamoDBEvent(ev events.DynamoDBEvent) []models.ChangeRecord {
	records := make([]models.ChangeRecord, 0, len(ev.Records))
	for _, r := range ev.Records {
		img := make(models.Image, len(r.Change.OldImage))
		for name, av := range r.Change.OldImage {
			switch av.DataType() {
			case events.DataTypeString:
				img[name] = models.ImageValue{Type: models.TypeString, Value: av.String()}
			case events.DataTypeNumber:
				img[name] = models.ImageValue{Type: models.TypeNumber, Value: av.Number()}
			}
		}
		records = append(records, models.ChangeRecord{
			EventID:        r.EventID,
			EventName:      r.EventName,
			SequenceNumber: r.Change.SequenceNumber,
			OldImage:       img,
		})
	}
	return records
}

// HandleDynamoDBEvent is the Lambda handler. With partial batch responses
// enabled, failed records are reported by sequence number and the invocation
// succeeds; otherwise any failure fails the whole batch.
func (n *ExpiryNotifier) HandleDynamoDBEvent(ctx context.Context, ev events.DynamoDBEvent) (resp events.DynamoDBEventResponse, err error) {
	ctx, done := tracing.Subsegment(ctx, "ExpiryNotifier.HandleBatch")
	defer func() { done(err) }()

	result := n.Process(ctx, FromDynamoDBEvent(ev))
	// Lambda has no scrape endpoint, so the batch counters go out as one log line.
	n.logger.Info().
		Str("metric", "reminder_batch").
		Int("records", len(ev.Records)).
		Int("emitted", result.Emitted).
		Int("skipped", result.Skipped).
		Int("failed", len(result.Failures)).
		Msg("stream batch processed")

	if !n.partialBatch {
		return events.DynamoDBEventResponse{}, result.Err()
	}

	for _, f := range result.Failures {
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.DynamoDBBatchItemFailure{
			ItemIdentifier: f.SequenceNumber,
		})
	}
	return resp, nil
}
