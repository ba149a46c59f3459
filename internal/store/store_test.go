package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"deskrec/internal/event"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "events.sqlite3")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, path
}

func testSession(id string) event.Session {
	return event.NewSession(id, time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC))
}

func TestOpenAndClose(t *testing.T) {
	s, _ := openTemp(t)
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "events.sqlite3")
	s, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	if err := ValidateSchema(context.Background(), s.DB()); err != nil {
		t.Fatalf("ValidateSchema failed: %v", err)
	}
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)

	if err := s.InsertSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}
	if err := s.InsertEvents(ctx, []event.Record{
		{SessionID: "s1", WallMs: 1, MonoMs: 0, Type: event.SessionStart},
		{SessionID: "s1", WallMs: 2, MonoMs: 1, Type: event.KeyDown},
	}); err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}

	objects := func(s *Store) int {
		var n int
		if err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
			t.Fatalf("count sqlite_master: %v", err)
		}
		return n
	}
	before := objects(s)
	s.Close()

	for i := 0; i < 2; i++ {
		s2, err := Open(path)
		if err != nil {
			t.Fatalf("reopen %d failed: %v", i, err)
		}
		if got := objects(s2); got != before {
			t.Errorf("reopen %d: %d schema objects, want %d", i, got, before)
		}
		n, err := s2.CountEvents(ctx, "s1")
		if err != nil {
			t.Fatalf("CountEvents failed: %v", err)
		}
		if n != 2 {
			t.Errorf("reopen %d: %d events, want 2", i, n)
		}
		v, err := SchemaVersion(ctx, s2.DB())
		if err != nil {
			t.Fatalf("SchemaVersion failed: %v", err)
		}
		if v != len(migrations) {
			t.Errorf("schema version %d, want %d", v, len(migrations))
		}
		s2.Close()
	}
}

func TestInsertAndReadEvents(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	if err := s.InsertSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	rect := event.NewRect(0, 0, 800, 600)
	button := "left_down"
	records := []event.Record{
		{
			SessionID: "s1", WallMs: 100, MonoMs: 5, Type: event.TextInput,
			ProcessName: `C:\Windows\notepad.exe`, WindowTitle: "notes", WindowClass: "Notepad",
			Rect:    &rect,
			Payload: map[string]any{"text": "ac", "reason": "idle"},
		},
		{
			SessionID: "s1", WallMs: 101, MonoMs: 6, Type: event.MouseClick,
			Mouse: &event.Mouse{X: 10, Y: 20, Button: &button},
		},
	}
	if err := s.InsertEvents(ctx, records); err != nil {
		t.Fatalf("InsertEvents failed: %v", err)
	}

	got, err := s.Events(ctx, "s1")
	if err != nil {
		t.Fatalf("Events failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}

	text := got[0]
	if text.Type != event.TextInput || text.Payload["text"] != "ac" {
		t.Errorf("unexpected text event: %+v", text)
	}
	if text.Rect == nil || text.Rect.Width != 800 {
		t.Errorf("rect not round-tripped: %+v", text.Rect)
	}
	if text.WindowClass != "Notepad" {
		t.Errorf("window class = %q", text.WindowClass)
	}

	click := got[1]
	if click.ProcessName != "" || click.Rect != nil {
		t.Errorf("expected NULL context on click, got %+v", click)
	}
	if click.Mouse == nil || click.Mouse.Button == nil || *click.Mouse.Button != "left_down" {
		t.Errorf("mouse not round-tripped: %+v", click.Mouse)
	}
	if click.Mouse.Delta != nil {
		t.Errorf("delta should be null")
	}
	if len(click.Payload) != 0 {
		t.Errorf("payload should be empty object, got %v", click.Payload)
	}
}

func TestInsertEventsIsAtomic(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	if err := s.InsertSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("InsertSession failed: %v", err)
	}

	err := s.InsertEvents(ctx, []event.Record{
		{SessionID: "s1", Type: event.KeyDown},
		{SessionID: "missing", Type: event.KeyDown},
	})
	if err == nil {
		t.Fatal("expected foreign key failure")
	}

	n, err := s.CountEvents(ctx, "s1")
	if err != nil {
		t.Fatalf("CountEvents failed: %v", err)
	}
	if n != 0 {
		t.Errorf("partial batch committed: %d rows", n)
	}
}

func TestSessionQueries(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)
	defer s.Close()

	if _, err := s.LatestSession(ctx); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("LatestSession on empty db: %v", err)
	}

	for _, id := range []string{"first", "second"} {
		if err := s.InsertSession(ctx, testSession(id)); err != nil {
			t.Fatalf("InsertSession(%s) failed: %v", id, err)
		}
	}
	if err := s.InsertSession(ctx, testSession("first")); err == nil {
		t.Error("duplicate session id accepted")
	}

	latest, err := s.LatestSession(ctx)
	if err != nil {
		t.Fatalf("LatestSession failed: %v", err)
	}
	if latest.ID != "second" {
		t.Errorf("latest = %q", latest.ID)
	}

	if err := s.SetVideoPath(ctx, "first", `D:\obs\2024-05-01.mkv`); err != nil {
		t.Fatalf("SetVideoPath failed: %v", err)
	}
	first, err := s.Session(ctx, "first")
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if first.VideoPath != `D:\obs\2024-05-01.mkv` {
		t.Errorf("video path = %q", first.VideoPath)
	}
	if first.StartWallISO != "2024-05-01T09:30:00Z" {
		t.Errorf("start iso = %q", first.StartWallISO)
	}

	if err := s.SetVideoPath(ctx, "nope", "x"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("SetVideoPath unknown session: %v", err)
	}
	if _, err := s.Session(ctx, "nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Session unknown: %v", err)
	}
}

func TestInsertEventsRollsBackOnExecError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO events")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	s := NewWithDB(db)
	err = s.InsertEvents(context.Background(), []event.Record{
		{SessionID: "s1", Type: event.KeyDown},
		{SessionID: "s1", Type: event.KeyUp},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestInsertEventsEmptyBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()

	if err := NewWithDB(db).InsertEvents(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("empty batch touched the db: %v", err)
	}
}
