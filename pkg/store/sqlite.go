package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store manages the SQLite connection and schema. It is both a Journal and a
// LeaseStore.
type Store struct {
	db *sql.DB
}

var (
	_ Journal    = (*Store)(nil)
	_ LeaseStore = (*Store)(nil)
)

// NewStore initializes the SQLite database connection.
// It enables WAL mode for concurrency and durability.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	// Envelope fields are columns for querying; the payload stays a JSON blob.
	query := `
	CREATE TABLE IF NOT EXISTS events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		schema_version INTEGER NOT NULL,
		ts_event DATETIME NOT NULL,
		ts_ingest DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		epoch INTEGER NOT NULL DEFAULT 0,

		origin_kind TEXT,
		origin_id TEXT,
		writer_id TEXT,

		kb_id TEXT NOT NULL,
		ki_name TEXT,
		ki_id TEXT,

		correlation_id TEXT,
		causation_id TEXT,

		payload JSON NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_ts_ingest ON events(ts_ingest);
	CREATE INDEX IF NOT EXISTS idx_events_correlation ON events(correlation_id);
	CREATE INDEX IF NOT EXISTS idx_events_ki_name ON events(ki_name);

	CREATE TABLE IF NOT EXISTS leases (
		name TEXT PRIMARY KEY,
		holder_id TEXT NOT NULL,
		expires_at DATETIME NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		epoch INTEGER NOT NULL DEFAULT 1
	);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

const eventColumns = `event_id, event_type, schema_version, ts_event, ts_ingest, epoch,
	origin_kind, origin_id, writer_id, kb_id, ki_name, ki_id,
	correlation_id, causation_id, payload`

// AppendEvent writes an event to the journal.
func (s *Store) AppendEvent(ctx context.Context, evt *Event) error {
	if evt.TsIngest.IsZero() {
		evt.TsIngest = time.Now().UTC()
	}
	payload := string(evt.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		evt.EventID, evt.EventType, evt.SchemaVersion, evt.TsEvent.UTC(), evt.TsIngest.UTC(), evt.Epoch,
		evt.Source.OriginKind, evt.Source.OriginID, evt.Source.WriterID,
		evt.Dimensions.KnowledgeBaseID, evt.Dimensions.InteractionName, evt.Dimensions.InteractionID,
		evt.Correlation.CorrelationID, evt.Correlation.CausationID, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to append event %s: %w", evt.EventID, err)
	}
	return nil
}

// GetEvent returns the event with id, or nil when there is none.
func (s *Store) GetEvent(ctx context.Context, id EventID) (*Event, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE event_id = ?`, id)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return evt, nil
}

// ReadRecentEvents returns up to limit events, newest first. A non-positive
// limit defaults to 50.
func (s *Store) ReadRecentEvents(ctx context.Context, limit int) ([]*Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events
		ORDER BY ts_ingest DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// QueryEvents returns the events matching filter in event time order.
func (s *Store) QueryEvents(ctx context.Context, filter EventFilter) ([]*Event, error) {
	var where []string
	var args []any

	if !filter.From.IsZero() {
		where = append(where, "ts_event >= ?")
		args = append(args, filter.From.UTC())
	}
	if !filter.To.IsZero() {
		where = append(where, "ts_event <= ?")
		args = append(args, filter.To.UTC())
	}
	if len(filter.EventTypes) > 0 {
		marks := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			marks[i] = "?"
			args = append(args, t)
		}
		where = append(where, "event_type IN ("+strings.Join(marks, ", ")+")")
	}
	if filter.KnowledgeBaseID != "" {
		where = append(where, "kb_id = ?")
		args = append(args, filter.KnowledgeBaseID)
	}
	if filter.InteractionName != "" {
		where = append(where, "ki_name = ?")
		args = append(args, filter.InteractionName)
	}

	query := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_event ASC, rowid ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// PruneEvents deletes events ingested before cutoff and reports how many.
func (s *Store) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE ts_ingest < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

// DeleteEvents removes the events with the given ids in one transaction.
func (s *Store) DeleteEvents(ctx context.Context, ids []EventID) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM events WHERE event_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, string(id)); err != nil {
			return fmt.Errorf("failed to delete event %s: %w", id, err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*Event, error) {
	var (
		evt                  Event
		originKind, originID sql.NullString
		writerID, kiName     sql.NullString
		kiID, correlation    sql.NullString
		causation            sql.NullString
		payload              string
	)
	err := row.Scan(
		&evt.EventID, &evt.EventType, &evt.SchemaVersion, &evt.TsEvent, &evt.TsIngest, &evt.Epoch,
		&originKind, &originID, &writerID, &evt.Dimensions.KnowledgeBaseID, &kiName, &kiID,
		&correlation, &causation, &payload,
	)
	if err != nil {
		return nil, err
	}
	evt.Source = EventSource{OriginKind: originKind.String, OriginID: originID.String, WriterID: writerID.String}
	evt.Dimensions.InteractionName = kiName.String
	evt.Dimensions.InteractionID = kiID.String
	evt.Correlation = EventCorrelation{CorrelationID: correlation.String, CausationID: causation.String}
	evt.Payload = []byte(payload)
	return &evt, nil
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	events := make([]*Event, 0)
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}
