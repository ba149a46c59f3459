// Package store persists sessions and event records to the SQLite event
// log. The writer goroutine is the only user of a Store inside the
// recorder; collaborators open their own connections against the same
// file, which WAL mode allows.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"deskrec/internal/event"
)

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("store: session not found")

// Store is the SQLite event log.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
// Re-opening an existing file leaves its tables and rows untouched.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open database without touching its schema.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for read-only tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// InsertSession creates the row for a recording run.
func (s *Store) InsertSession(ctx context.Context, sess event.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, start_wall_ms, start_wall_iso, obs_video_path)
		VALUES (?, ?, ?, ?)`,
		sess.ID, sess.StartWallMs, sess.StartWallISO, nullable(sess.VideoPath),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SetVideoPath back-fills the externally recorded video file for a
// session.
func (s *Store) SetVideoPath(ctx context.Context, sessionID, path string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET obs_video_path = ? WHERE session_id = ?",
		nullable(path), sessionID,
	)
	if err != nil {
		return fmt.Errorf("update video path: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update video path: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// InsertEvents writes a batch in one transaction. On any error nothing
// from the batch is committed.
func (s *Store) InsertEvents(ctx context.Context, records []event.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (session_id, ts_wall_ms, ts_mono_ms, event_type, process_name,
			window_title, window_class, window_rect, mouse, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		r := &records[i]
		rect, err := marshalOptional(r.Rect)
		if err != nil {
			return fmt.Errorf("encode rect: %w", err)
		}
		mouse, err := marshalOptional(r.Mouse)
		if err != nil {
			return fmt.Errorf("encode mouse: %w", err)
		}
		payload, err := marshalPayload(r.Payload)
		if err != nil {
			return fmt.Errorf("encode payload for %s: %w", r.Type, err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.SessionID, r.WallMs, r.MonoMs, string(r.Type),
			nullable(r.ProcessName), nullable(r.WindowTitle), nullable(r.WindowClass),
			rect, mouse, payload,
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Session returns one session by id.
func (s *Store) Session(ctx context.Context, id string) (*event.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, start_wall_ms, start_wall_iso, obs_video_path
		FROM sessions WHERE session_id = ?`, id)
	return scanSession(row)
}

// LatestSession returns the most recently started session.
func (s *Store) LatestSession(ctx context.Context) (*event.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, start_wall_ms, start_wall_iso, obs_video_path
		FROM sessions ORDER BY id DESC LIMIT 1`)
	return scanSession(row)
}

func scanSession(row *sql.Row) (*event.Session, error) {
	var sess event.Session
	var video sql.NullString
	if err := row.Scan(&sess.ID, &sess.StartWallMs, &sess.StartWallISO, &video); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.VideoPath = video.String
	return &sess, nil
}

// Events returns a session's records in write order.
func (s *Store) Events(ctx context.Context, sessionID string) ([]event.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, ts_wall_ms, ts_mono_ms, event_type, process_name,
			window_title, window_class, window_rect, mouse, payload
		FROM events WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []event.Record
	for rows.Next() {
		var r event.Record
		var typ string
		var proc, title, class, rect, mouse, payload sql.NullString
		if err := rows.Scan(&r.SessionID, &r.WallMs, &r.MonoMs, &typ, &proc,
			&title, &class, &rect, &mouse, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Type = event.Type(typ)
		r.ProcessName, r.WindowTitle, r.WindowClass = proc.String, title.String, class.String
		if rect.Valid {
			r.Rect = new(event.Rect)
			if err := json.Unmarshal([]byte(rect.String), r.Rect); err != nil {
				return nil, fmt.Errorf("decode rect: %w", err)
			}
		}
		if mouse.Valid {
			r.Mouse = new(event.Mouse)
			if err := json.Unmarshal([]byte(mouse.String), r.Mouse); err != nil {
				return nil, fmt.Errorf("decode mouse: %w", err)
			}
		}
		if payload.Valid {
			if err := json.Unmarshal([]byte(payload.String), &r.Payload); err != nil {
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return records, nil
}

// CountEvents returns the number of records stored for a session.
func (s *Store) CountEvents(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events WHERE session_id = ?", sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalOptional[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func marshalPayload(p map[string]any) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
