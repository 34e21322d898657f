package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"bookingsvc/internal/domain"
	"bookingsvc/internal/models"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const bookingColumns = "booking_id, user_id, resource_id, start_time, end_time, ttl, status"

// SQLiteStore keeps bookings in a single SQLite table. Rows with a ttl are
// removed by PopExpired, which also numbers the removals from a persistent
// sequence.
type SQLiteStore struct {
	db     *sql.DB
	logger *zerolog.Logger
}

// NewSQLiteStore opens (or creates) the database at path and prepares the schema.
func NewSQLiteStore(path string, logger *zerolog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := createTables(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("sqlite database initialized")
	return &SQLiteStore{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            booking_id TEXT PRIMARY KEY,
            user_id TEXT NOT NULL,
            resource_id TEXT NOT NULL,
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            ttl INTEGER,
            status TEXT NOT NULL DEFAULT 'active'
        )`,
		`CREATE TABLE IF NOT EXISTS booking_expiry_seq (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            value INTEGER NOT NULL
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_ttl ON bookings(ttl) WHERE ttl IS NOT NULL`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

// Put inserts the booking or replaces every attribute of an existing one.
func (s *SQLiteStore) Put(ctx context.Context, booking *models.Booking) error {
	status := booking.Status
	if status == "" {
		status = models.StatusActive
	}
	query := `INSERT INTO bookings (` + bookingColumns + `)
            VALUES (?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(booking_id) DO UPDATE SET
                user_id = excluded.user_id,
                resource_id = excluded.resource_id,
                start_time = excluded.start_time,
                end_time = excluded.end_time,
                ttl = excluded.ttl,
                status = excluded.status`
	_, err := s.db.ExecContext(ctx, query,
		booking.BookingID,
		booking.UserID,
		booking.ResourceID,
		models.FormatTimestamp(booking.StartTime),
		models.FormatTimestamp(booking.EndTime),
		nullableTTL(booking.TTL),
		status,
	)
	if err != nil {
		return fmt.Errorf("failed to put booking: %w", err)
	}
	return nil
}

// UpdateIfExists applies the patch in one UPDATE ... RETURNING statement; no
// returned row means the booking does not exist.
func (s *SQLiteStore) UpdateIfExists(ctx context.Context, id string, patch models.BookingPatch) (domain.UpdateResult, error) {
	if patch.IsEmpty() {
		b, err := s.Get(ctx, id)
		if errors.Is(err, models.ErrBookingNotFound) {
			return domain.UpdateResult{}, nil
		}
		if err != nil {
			return domain.UpdateResult{}, err
		}
		return domain.UpdateResult{Booking: b, Found: true}, nil
	}

	sets, args := updateAssignments(patch)
	query := fmt.Sprintf(`UPDATE bookings SET %s WHERE booking_id = ? RETURNING %s`, strings.Join(sets, ", "), bookingColumns)
	b, err := scanBooking(s.db.QueryRowContext(ctx, query, append(args, id)...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.UpdateResult{}, nil
	}
	if err != nil {
		return domain.UpdateResult{}, fmt.Errorf("failed to update booking: %w", err)
	}
	return domain.UpdateResult{Booking: b, Found: true}, nil
}

// Delete removes the booking; a missing id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bookings WHERE booking_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return nil
}

func (s *SQLiteStore) QueryByUser(ctx context.Context, userID string) ([]*models.Booking, error) {
	result := make([]*models.Booking, 0)
	if userID == "" {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE user_id = ? ORDER BY start_time, booking_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		result = append(result, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return result, nil
}

// PopExpired deletes up to limit bookings whose ttl is at or before now, oldest
// ttl first, and returns their removal records. Deletion and sequence
// allocation commit together.
func (s *SQLiteStore) PopExpired(ctx context.Context, now time.Time, limit int) ([]models.ChangeRecord, error) {
	if limit <= 0 {
		limit = -1
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `DELETE FROM bookings WHERE booking_id IN (
                SELECT booking_id FROM bookings
                WHERE ttl IS NOT NULL AND ttl <= ?
                ORDER BY ttl, booking_id
                LIMIT ?
            ) RETURNING ` + bookingColumns
	rows, err := tx.QueryContext(ctx, query, now.Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired bookings: %w", err)
	}
	expired := make([]*models.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan expired booking: %w", err)
		}
		expired = append(expired, b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to iterate expired bookings: %w", err)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("failed to close rows: %w", err)
	}
	if len(expired) == 0 {
		return []models.ChangeRecord{}, tx.Commit()
	}

	// RETURNING does not guarantee order.
	sort.Slice(expired, func(i, j int) bool {
		if *expired[i].TTL == *expired[j].TTL {
			return expired[i].BookingID < expired[j].BookingID
		}
		return *expired[i].TTL < *expired[j].TTL
	})

	var last int64
	err = tx.QueryRowContext(ctx, `INSERT INTO booking_expiry_seq (id, value) VALUES (1, ?)
            ON CONFLICT(id) DO UPDATE SET value = value + excluded.value
            RETURNING value`, len(expired)).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence numbers: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expiry: %w", err)
	}

	first := last - int64(len(expired)) + 1
	records := make([]models.ChangeRecord, 0, len(expired))
	for i, b := range expired {
		records = append(records, models.ChangeRecord{
			EventID:        uuid.NewString(),
			EventName:      models.EventRemove,
			SequenceNumber: strconv.FormatInt(first+int64(i), 10),
			OldImage:       models.ImageOf(b),
		})
	}
	s.logger.Debug().Int("count", len(records)).Msg("expired bookings deleted")
	return records, nil
}

func updateAssignments(p models.BookingPatch) ([]string, []any) {
	var (
		sets []string
		args []any
	)
	if p.ResourceID != nil {
		sets = append(sets, "resource_id = ?")
		args = append(args, *p.ResourceID)
	}
	if p.StartTime != nil {
		sets = append(sets, "start_time = ?")
		args = append(args, models.FormatTimestamp(*p.StartTime))
	}
	if p.EndTime != nil {
		sets = append(sets, "end_time = ?")
		args = append(args, models.FormatTimestamp(*p.EndTime))
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *p.Status)
	}
	switch p.TTLOp {
	case models.TTLSet:
		sets = append(sets, "ttl = ?")
		args = append(args, p.TTL)
	case models.TTLRemove:
		sets = append(sets, "ttl = NULL")
	}
	return sets, args
}

func nullableTTL(ttl *int64) sql.NullInt64 {
	if ttl == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *ttl, Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b          models.Booking
		start, end string
		ttl        sql.NullInt64
	)
	if err := row.Scan(&b.BookingID, &b.UserID, &b.ResourceID, &start, &end, &ttl, &b.Status); err != nil {
		return nil, err
	}

	var err error
	if b.StartTime, err = models.ParseTimestamp(start); err != nil {
		return nil, fmt.Errorf("failed to decode start_time: %w", err)
	}
	if b.EndTime, err = models.ParseTimestamp(end); err != nil {
		return nil, fmt.Errorf("failed to decode end_time: %w", err)
	}
	if ttl.Valid {
		v := ttl.Int64
		b.TTL = &v
	}
	return withDefaults(&b), nil
}
