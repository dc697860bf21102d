package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/andresmejia3/facepunch/internal/types"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ExportHeader is the column header written before exported ledger rows.
var ExportHeader = []string{"matricula", "nome", "action", "timestamp", "confidence"}

// Sink consumes exported attendance rows.
type Sink interface {
	WriteHeader(cols []string) error
	WriteRow(ev types.AttendanceEvent) error
}

// IdentityRecord is a row of the identity table.
type IdentityRecord struct {
	types.Identity
	FacePath string
}

// Store manages the PostgreSQL connection holding the identity table and the attendance ledger.
// A single pgx.Conn is not safe for concurrent use, so every statement runs under mu;
// this also serializes ledger appends coming from concurrent punches.
type Store struct {
	mu   sync.Mutex
	conn *pgx.Conn
	now  func() time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn, now: time.Now}, nil
}

// initSchema creates the identity and attendance tables if they don't exist.
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS identities (
			id SERIAL PRIMARY KEY,
			unique_id TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			face_path TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS attendance (
			id BIGSERIAL PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			matricula TEXT NOT NULL,
			nome TEXT NOT NULL,
			action TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL
		);
		CREATE INDEX IF NOT EXISTS attendance_timestamp_idx ON attendance (timestamp);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.Close(ctx)
}

// UpsertIdentity inserts or replaces the identity row for id.UniqueID.
func (s *Store) UpsertIdentity(ctx context.Context, id types.Identity, facePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO identities (unique_id, display_name, face_path, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (unique_id) DO UPDATE
		SET display_name = EXCLUDED.display_name, face_path = EXCLUDED.face_path, created_at = EXCLUDED.created_at
	`, id.UniqueID, id.DisplayName, facePath, id.CreatedAt)
	return err
}

// RenameIdentity updates the display name of an identity.
func (s *Store) RenameIdentity(ctx context.Context, uniqueID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tag, err := s.conn.Exec(ctx, "UPDATE identities SET display_name = $1 WHERE unique_id = $2", displayName, uniqueID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("identity %q not in index", uniqueID)
	}
	return nil
}

// ListIdentities returns every indexed identity ordered by unique id.
func (s *Store) ListIdentities(ctx context.Context) ([]IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `
		SELECT unique_id, display_name, face_path, created_at
		FROM identities
		ORDER BY unique_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IdentityRecord
	for rows.Next() {
		var r IdentityRecord
		if err := rows.Scan(&r.UniqueID, &r.DisplayName, &r.FacePath, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Append stamps the current local time and records one attendance event.
func (s *Store) Append(ctx context.Context, identityID, displayName, action string, confidence float64) (types.AttendanceEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev := types.AttendanceEvent{
		ID:          uuid.NewString(),
		IdentityID:  identityID,
		DisplayName: displayName,
		Action:      action,
		Timestamp:   s.now().Format(types.TimestampLayout),
		Confidence:  confidence,
	}
	_, err := s.conn.Exec(ctx, `
		INSERT INTO attendance (event_id, matricula, nome, action, timestamp, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID, ev.IdentityID, ev.DisplayName, ev.Action, ev.Timestamp, ev.Confidence)
	if err != nil {
		return types.AttendanceEvent{}, types.Storage("append attendance event", err)
	}
	return ev, nil
}

// Count returns the number of recorded events.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.conn.QueryRow(ctx, "SELECT COUNT(*) FROM attendance").Scan(&n); err != nil {
		return 0, types.Storage("count attendance events", err)
	}
	return n, nil
}

// Export streams every event to sink, newest first. It does not modify the ledger.
func (s *Store) Export(ctx context.Context, sink Sink) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `
		SELECT event_id, matricula, nome, action, timestamp, confidence
		FROM attendance
		ORDER BY timestamp DESC, id DESC
	`)
	if err != nil {
		return 0, types.Storage("query attendance events", err)
	}
	defer rows.Close()

	if err := sink.WriteHeader(ExportHeader); err != nil {
		return 0, err
	}

	n := 0
	for rows.Next() {
		var ev types.AttendanceEvent
		if err := rows.Scan(&ev.ID, &ev.IdentityID, &ev.DisplayName, &ev.Action, &ev.Timestamp, &ev.Confidence); err != nil {
			return n, types.Storage("scan attendance event", err)
		}
		if err := sink.WriteRow(ev); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, types.Storage("read attendance events", err)
	}
	return n, nil
}

// ClearAll irreversibly deletes every attendance event. Callers must confirm with the operator first.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.conn.Exec(ctx, "DELETE FROM attendance"); err != nil {
		return types.Storage("clear attendance events", err)
	}
	return nil
}
