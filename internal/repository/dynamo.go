package repository

import (
	"context"
	"errors"
	"fmt"

	"bookingsvc/internal/domain"
	"bookingsvc/internal/models"
	"bookingsvc/internal/tracing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
)

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// bookingItem is the table representation. Timestamps are ISO-8601 strings and
// ttl is epoch seconds read by DynamoDB's native expiry.
type bookingItem struct {
	BookingID  string `dynamodbav:"booking_id"`
	UserID     string `dynamodbav:"user_id"`
	ResourceID string `dynamodbav:"resource_id"`
	StartTime  string `dynamodbav:"start_time"`
	EndTime    string `dynamodbav:"end_time"`
	TTL        *int64 `dynamodbav:"ttl,omitempty"`
	Status     string `dynamodbav:"status,omitempty"`
}

type DynamoOption func(*DynamoStore)

// WithAPI replaces the DynamoDB client, mainly for tests.
func WithAPI(api DynamoAPI) DynamoOption {
	return func(s *DynamoStore) { s.api = api }
}

func WithUserIndex(name string) DynamoOption {
	return func(s *DynamoStore) { s.userIndex = name }
}

// WithEndpoint points the client at a non-default endpoint such as DynamoDB Local.
func WithEndpoint(endpoint string) DynamoOption {
	return func(s *DynamoStore) { s.endpoint = endpoint }
}

func WithDynamoLogger(logger *zerolog.Logger) DynamoOption {
	return func(s *DynamoStore) { s.logger = logger }
}

// DynamoStore is the production BookingStore. Expiry and the change stream are
// provided by the table itself.
type DynamoStore struct {
	api       DynamoAPI
	table     string
	userIndex string
	endpoint  string
	logger    *zerolog.Logger
}

func NewDynamoStore(awsCfg *aws.Config, table string, opts ...DynamoOption) *DynamoStore {
	s := &DynamoStore{
		table:     table,
		userIndex: "user_id_index",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		nop := zerolog.Nop()
		s.logger = &nop
	}
	if s.api == nil && awsCfg != nil {
		s.api = dynamodb.NewFromConfig(*awsCfg, func(o *dynamodb.Options) {
			if s.endpoint != "" {
				o.BaseEndpoint = aws.String(s.endpoint)
			}
		})
	}
	return s
}

func (s *DynamoStore) key(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		models.AttrBookingID: &types.AttributeValueMemberS{Value: id},
	}
}

func (s *DynamoStore) Get(ctx context.Context, id string) (b *models.Booking, err error) {
	ctx, done := tracing.Subsegment(ctx, "BookingStore.Get")
	defer func() { done(err) }()

	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(id),
	})
	if err != nil {
		return nil, wrapDynamoErr("get item", err)
	}
	if len(out.Item) == 0 {
		return nil, models.ErrBookingNotFound
	}
	return decodeItem(out.Item)
}

func (s *DynamoStore) Put(ctx context.Context, booking *models.Booking) (err error) {
	ctx, done := tracing.Subsegment(ctx, "BookingStore.Put")
	defer func() { done(err) }()

	item, err := attributevalue.MarshalMap(encodeItem(booking))
	if err != nil {
		return fmt.Errorf("marshal booking: %w", err)
	}

	if _, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}); err != nil {
		return wrapDynamoErr("put item", err)
	}
	return nil
}

// UpdateIfExists issues one UpdateItem conditioned on attribute_exists(booking_id)
// and returns ALL_NEW attributes. A failed condition means the booking is absent.
func (s *DynamoStore) UpdateIfExists(ctx context.Context, id string, patch models.BookingPatch) (res domain.UpdateResult, err error) {
	if patch.IsEmpty() {
		b, err := s.Get(ctx, id)
		if errors.Is(err, models.ErrBookingNotFound) {
			return domain.UpdateResult{Found: false}, nil
		}
		if err != nil {
			return domain.UpdateResult{}, err
		}
		return domain.UpdateResult{Booking: b, Found: true}, nil
	}

	ctx, done := tracing.Subsegment(ctx, "BookingStore.UpdateIfExists")
	defer func() { done(err) }()

	expr, err := expression.NewBuilder().
		WithUpdate(updateExpression(patch)).
		WithCondition(expression.AttributeExists(expression.Name(models.AttrBookingID))).
		Build()
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("build update expression: %w", err)
	}

	out, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       s.key(id),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return domain.UpdateResult{Found: false}, nil
		}
		return domain.UpdateResult{}, wrapDynamoErr("update item", err)
	}

	b, err := decodeItem(out.Attributes)
	if err != nil {
		return domain.UpdateResult{}, err
	}
	return domain.UpdateResult{Booking: b, Found: true}, nil
}

func (s *DynamoStore) Delete(ctx context.Context, id string) (err error) {
	ctx, done := tracing.Subsegment(ctx, "BookingStore.Delete")
	defer func() { done(err) }()

	if _, err = s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(id),
	}); err != nil {
		return wrapDynamoErr("delete item", err)
	}
	return nil
}

// QueryByUser reads every page of the user index.
func (s *DynamoStore) QueryByUser(ctx context.Context, userID string) (list []*models.Booking, err error) {
	list = make([]*models.Booking, 0)
	// DynamoDB rejects empty key values; an empty user owns nothing.
	if userID == "" {
		return list, nil
	}

	ctx, done := tracing.Subsegment(ctx, "BookingStore.QueryByUser")
	defer func() { done(err) }()

	expr, err := expression.NewBuilder().
		WithKeyCondition(expression.Key(models.AttrUserID).Equal(expression.Value(userID))).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build key condition: %w", err)
	}

	paginator := dynamodb.NewQueryPaginator(s.api, &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		IndexName:                 aws.String(s.userIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, wrapDynamoErr("query user index", err)
		}
		for _, item := range page.Items {
			b, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			list = append(list, b)
		}
	}
	s.logger.Debug().Str("user_id", userID).Int("count", len(list)).Msg("queried user bookings")
	return list, nil
}

func updateExpression(p models.BookingPatch) expression.UpdateBuilder {
	var update expression.UpdateBuilder
	if p.ResourceID != nil {
		update = update.Set(expression.Name(models.AttrResourceID), expression.Value(*p.ResourceID))
	}
	if p.StartTime != nil {
		update = update.Set(expression.Name(models.AttrStartTime), expression.Value(models.FormatTimestamp(*p.StartTime)))
	}
	if p.EndTime != nil {
		update = update.Set(expression.Name(models.AttrEndTime), expression.Value(models.FormatTimestamp(*p.EndTime)))
	}
	if p.Status != nil {
		update = update.Set(expression.Name(models.AttrStatus), expression.Value(*p.Status))
	}
	switch p.TTLOp {
	case models.TTLSet:
		update = update.Set(expression.Name(models.AttrTTL), expression.Value(p.TTL))
	case models.TTLRemove:
		update = update.Remove(expression.Name(models.AttrTTL))
	}
	return update
}

func encodeItem(b *models.Booking) bookingItem {
	return bookingItem{
		BookingID:  b.BookingID,
		UserID:     b.UserID,
		ResourceID: b.ResourceID,
		StartTime:  models.FormatTimestamp(b.StartTime),
		EndTime:    models.FormatTimestamp(b.EndTime),
		TTL:        b.TTL,
		Status:     b.Status,
	}
}

func decodeItem(av map[string]types.AttributeValue) (*models.Booking, error) {
	var item bookingItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("unmarshal booking: %w", err)
	}

	start, err := models.ParseTimestamp(item.StartTime)
	if err != nil {
		return nil, fmt.Errorf("decode start_time: %w", err)
	}
	end, err := models.ParseTimestamp(item.EndTime)
	if err != nil {
		return nil, fmt.Errorf("decode end_time: %w", err)
	}

	return withDefaults(&models.Booking{
		BookingID:  item.BookingID,
		UserID:     item.UserID,
		ResourceID: item.ResourceID,
		StartTime:  start,
		EndTime:    end,
		TTL:        item.TTL,
		Status:     item.Status,
	}), nil
}

func wrapDynamoErr(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("dynamodb %s (%s): %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("dynamodb %s: %w", op, err)
}
