package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bookingsvc/internal/config"
	"bookingsvc/internal/domain"
	"bookingsvc/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisExpiryKey  = "booking_expiry"
	redisTxAttempts = 5
)

// RedisStore keeps each booking in a hash, a set of booking ids per user and a
// sorted set of ttl deadlines that PopExpired drains.
type RedisStore struct {
	client *redis.Client
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func bookingKey(id string) string {
	return fmt.Sprintf("booking:%s", id)
}

func userBookingsKey(userID string) string {
	return fmt.Sprintf("user_bookings:%s", userID)
}

func (r *RedisStore) Get(ctx context.Context, id string) (*models.Booking, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	fields, err := r.client.HGetAll(ctx, bookingKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get booking from redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, models.ErrBookingNotFound
	}
	return decodeHash(fields)
}

func (r *RedisStore) Put(ctx context.Context, booking *models.Booking) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := bookingKey(booking.BookingID)

	err := r.watch(ctx, func(tx *redis.Tx) error {
		prevUser, err := tx.HGet(ctx, key, models.AttrUserID).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, encodeHash(booking))
			if prevUser != "" && prevUser != booking.UserID {
				pipe.SRem(ctx, userBookingsKey(prevUser), booking.BookingID)
			}
			pipe.SAdd(ctx, userBookingsKey(booking.UserID), booking.BookingID)
			if booking.TTL != nil {
				pipe.ZAdd(ctx, redisExpiryKey, redis.Z{Score: float64(*booking.TTL), Member: booking.BookingID})
			} else {
				pipe.ZRem(ctx, redisExpiryKey, booking.BookingID)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return fmt.Errorf("failed to put booking in redis: %w", err)
	}
	return nil
}

// UpdateIfExists applies the patch inside WATCH/MULTI so the existence check and
// the write commit together. The new state is read in the same transaction.
func (r *RedisStore) UpdateIfExists(ctx context.Context, id string, patch models.BookingPatch) (domain.UpdateResult, error) {
	if r.client == nil {
		return domain.UpdateResult{}, fmt.Errorf("redis client is nil")
	}
	key := bookingKey(id)

	var result domain.UpdateResult
	err := r.watch(ctx, func(tx *redis.Tx) error {
		result = domain.UpdateResult{}

		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		var after *redis.MapStringStringCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if fields := patchFields(patch); len(fields) > 0 {
				pipe.HSet(ctx, key, fields)
			}
			switch patch.TTLOp {
			case models.TTLSet:
				pipe.ZAdd(ctx, redisExpiryKey, redis.Z{Score: float64(patch.TTL), Member: id})
			case models.TTLRemove:
				pipe.HDel(ctx, key, models.AttrTTL)
				pipe.ZRem(ctx, redisExpiryKey, id)
			}
			after = pipe.HGetAll(ctx, key)
			return nil
		})
		if err != nil {
			return err
		}

		b, err := decodeHash(after.Val())
		if err != nil {
			return err
		}
		result = domain.UpdateResult{Booking: b, Found: true}
		return nil
	}, key)
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("failed to update booking in redis: %w", err)
	}
	return result, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	key := bookingKey(id)

	userID, err := r.client.HGet(ctx, key, models.AttrUserID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to read booking owner from redis: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, redisExpiryKey, id)
		if userID != "" {
			pipe.SRem(ctx, userBookingsKey(userID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete booking from redis: %w", err)
	}
	return nil
}

func (r *RedisStore) QueryByUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	result := make([]*models.Booking, 0)
	if userID == "" {
		return result, nil
	}

	ids, err := r.client.SMembers(ctx, userBookingsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list user bookings from redis: %w", err)
	}
	if len(ids) == 0 {
		return result, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, bookingKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load user bookings from redis: %w", err)
	}

	for _, cmd := range cmds {
		fields := cmd.Val()
		// Members can outlive their hash when a sweep races a delete.
		if len(fields) == 0 {
			continue
		}
		b, err := decodeHash(fields)
		if err != nil {
			return nil, err
		}
		if b.UserID == userID {
			result = append(result, b)
		}
	}
	return result, nil
}

// PopExpired removes up to limit bookings whose ttl deadline has passed.
func (r *RedisStore) PopExpired(ctx context.Context, now time.Time, limit int) ([]models.ChangeRecord, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	rng := &redis.ZRangeBy{Min: "-inf", Max: strconv.FormatInt(now.Unix(), 10)}
	if limit > 0 {
		rng.Count = int64(limit)
	}
	ids, err := r.client.ZRangeByScore(ctx, redisExpiryKey, rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan expiry index: %w", err)
	}

	records := make([]models.ChangeRecord, 0, len(ids))
	for _, id := range ids {
		b, err := r.removeIfExpired(ctx, id, now.Unix())
		if err != nil {
			return records, err
		}
		if b == nil {
			continue
		}
		seq, err := r.client.Incr(ctx, "booking_expiry_seq").Result()
		if err != nil {
			return records, fmt.Errorf("failed to allocate sequence number: %w", err)
		}
		records = append(records, models.ChangeRecord{
			EventID:        uuid.NewString(),
			EventName:      models.EventRemove,
			SequenceNumber: strconv.FormatInt(seq, 10),
			OldImage:       models.ImageOf(b),
		})
	}
	return records, nil
}

// removeIfExpired deletes one booking when its stored ttl is still due and returns
// the removed state. A nil booking means nothing was removed.
func (r *RedisStore) removeIfExpired(ctx context.Context, id string, cutoff int64) (*models.Booking, error) {
	key := bookingKey(id)

	var removed *models.Booking
	err := r.watch(ctx, func(tx *redis.Tx) error {
		removed = nil

		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return tx.ZRem(ctx, redisExpiryKey, id).Err()
		}
		b, err := decodeHash(fields)
		if err != nil {
			return err
		}
		if b.TTL == nil || *b.TTL > cutoff {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.ZRem(ctx, redisExpiryKey, id)
			pipe.SRem(ctx, userBookingsKey(b.UserID), id)
			return nil
		})
		if err != nil {
			return err
		}
		removed = b
		return nil
	}, key)
	if err != nil {
		return nil, fmt.Errorf("failed to expire booking %s: %w", id, err)
	}
	return removed, nil
}

func (r *RedisStore) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < redisTxAttempts; attempt++ {
		err = r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

func encodeHash(b *models.Booking) map[string]interface{} {
	status := b.Status
	if status == "" {
		status = models.StatusActive
	}
	fields := map[string]interface{}{
		models.AttrBookingID:  b.BookingID,
		models.AttrUserID:     b.UserID,
		models.AttrResourceID: b.ResourceID,
		models.AttrStartTime:  models.FormatTimestamp(b.StartTime),
		models.AttrEndTime:    models.FormatTimestamp(b.EndTime),
		models.AttrStatus:     status,
	}
	if b.TTL != nil {
		fields[models.AttrTTL] = strconv.FormatInt(*b.TTL, 10)
	}
	return fields
}

func patchFields(p models.BookingPatch) map[string]interface{} {
	fields := make(map[string]interface{})
	if p.ResourceID != nil {
		fields[models.AttrResourceID] = *p.ResourceID
	}
	if p.StartTime != nil {
		fields[models.AttrStartTime] = models.FormatTimestamp(*p.StartTime)
	}
	if p.EndTime != nil {
		fields[models.AttrEndTime] = models.FormatTimestamp(*p.EndTime)
	}
	if p.Status != nil {
		fields[models.AttrStatus] = *p.Status
	}
	if p.TTLOp == models.TTLSet {
		fields[models.AttrTTL] = strconv.FormatInt(p.TTL, 10)
	}
	return fields
}

func decodeHash(fields map[string]string) (*models.Booking, error) {
	start, err := models.ParseTimestamp(fields[models.AttrStartTime])
	if err != nil {
		return nil, fmt.Errorf("failed to decode start_time: %w", err)
	}
	end, err := models.ParseTimestamp(fields[models.AttrEndTime])
	if err != nil {
		return nil, fmt.Errorf("failed to decode end_time: %w", err)
	}

	b := &models.Booking{
		BookingID:  fields[models.AttrBookingID],
		UserID:     fields[models.AttrUserID],
		ResourceID: fields[models.AttrResourceID],
		StartTime:  start,
		EndTime:    end,
		Status:     fields[models.AttrStatus],
	}
	if raw, ok := fields[models.AttrTTL]; ok {
		ttl, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode ttl: %w", err)
		}
		b.TTL = &ttl
	}
	return withDefaults(b), nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}
