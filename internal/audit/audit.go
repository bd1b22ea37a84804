// Package audit records parse events so operators can see what the
// service has been fed. Recording is best-effort: a storage failure is
// logged by the caller and never fails the request that produced it.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one successful multipart parse.
type Event struct {
	ID        string    `json:"id"`
	Fields    []string  `json:"fields"`
	FileCount int       `json:"fileCount"`
	RowCount  int       `json:"rowCount"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Recorder persists parse events.
type Recorder interface {
	Record(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// NopRecorder discards events. Used when no database is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Event) error { return nil }

func (NopRecorder) Recent(context.Context, int) ([]Event, error) { return nil, nil }

// Store is a PostgreSQL-backed Recorder.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a connection pool. Call Init once before recording.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the parse_events table if it does not exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS parse_events (
			id UUID PRIMARY KEY,
			fields TEXT[] NOT NULL,
			file_count INT NOT NULL,
			row_count INT NOT NULL,
			ip_address TEXT,
			user_agent TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("creating parse_events table: %w", err)
	}
	return nil
}

// Record inserts one event. The ID is assigned here.
func (s *Store) Record(ctx context.Context, e Event) error {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO parse_events (id, fields, file_count, row_count, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		pgtype.UUID{Bytes: id, Valid: true},
		e.Fields,
		e.FileCount,
		e.RowCount,
		toPgText(e.IPAddress),
		toPgText(e.UserAgent),
	)
	if err != nil {
		return fmt.Errorf("inserting parse event: %w", err)
	}
	return nil
}

// Recent returns the most recent events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, fields, file_count, row_count, ip_address, user_agent, created_at
		FROM parse_events
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying parse events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			id     pgtype.UUID
			ip, ua pgtype.Text
			e      Event
		)
		if err := rows.Scan(&id, &e.Fields, &e.FileCount, &e.RowCount, &ip, &ua, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning parse event: %w", err)
		}
		if id.Valid {
			e.ID = uuid.UUID(id.Bytes).String()
		}
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// toPgText maps empty strings to NULL.
func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}
