package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/PromptDeck/internal/models"
	"github.com/google/go-cmp/cmp"
)

func sampleProgress() models.Progress {
	idx := 2
	return models.Progress{
		CompletedPrompts: models.NewIDSet("p1", "p2"),
		CurrentIndex:     &idx,
		UsedPrompts:      models.NewIDSet("p2"),
		LastAccessDate:   time.Date(2026, 5, 10, 14, 30, 0, 123_000_000, time.UTC),
	}
}

// exerciseStore runs the shared contract against any backend.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	fresh := s.GetProgress("missing")
	if len(fresh.CompletedPrompts) != 0 || fresh.UsedPrompts != nil || fresh.CurrentIndex != nil || !fresh.LastAccessDate.IsZero() {
		t.Fatalf("absent pack should yield empty progress, got %+v", fresh)
	}

	want := sampleProgress()
	if err := s.UpdateProgress(ctx, "pack-1", want); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got := s.GetProgress("pack-1")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}

	// Snapshot writes are idempotent.
	if err := s.UpdateProgress(ctx, "pack-1", want); err != nil {
		t.Fatalf("repeat UpdateProgress: %v", err)
	}

	if err := s.ResetProgress(ctx, "pack-1"); err != nil {
		t.Fatalf("ResetProgress: %v", err)
	}
	reset := s.GetProgress("pack-1")
	if len(reset.CompletedPrompts) != 0 || reset.UsedPrompts != nil {
		t.Errorf("reset progress not empty: %+v", reset)
	}

	if err := s.ArchiveProgress(ctx, "pack-1"); err != nil {
		t.Fatalf("ArchiveProgress: %v", err)
	}
	if err := s.ArchiveProgress(ctx, "pack-1"); err != nil {
		t.Fatalf("ArchiveProgress on absent record: %v", err)
	}

	isNew, err := s.RecordNotice(ctx, "pack-1@2026-05-10T09:00", "pack-1")
	if err != nil || !isNew {
		t.Fatalf("first RecordNotice = %v, %v; want true, nil", isNew, err)
	}
	isNew, err = s.RecordNotice(ctx, "pack-1@2026-05-10T09:00", "pack-1")
	if err != nil || isNew {
		t.Fatalf("duplicate RecordNotice = %v, %v; want false, nil", isNew, err)
	}

	n, err := s.PruneNotices(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneNotices: %v", err)
	}
	if n != 1 {
		t.Errorf("PruneNotices removed %d keys, want 1", n)
	}
	isNew, err = s.RecordNotice(ctx, "pack-1@2026-05-10T09:00", "pack-1")
	if err != nil || !isNew {
		t.Errorf("RecordNotice after prune = %v, %v; want true, nil", isNew, err)
	}
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestInMemoryStoreCopiesOnWrite(t *testing.T) {
	s := NewInMemoryStore()
	p := sampleProgress()
	if err := s.UpdateProgress(context.Background(), "pack", p); err != nil {
		t.Fatal(err)
	}
	p.CompletedPrompts.Add("p9")
	if s.GetProgress("pack").CompletedPrompts.Has("p9") {
		t.Error("store shares the caller's set")
	}
}

func TestInMemoryStoreCancelledContext(t *testing.T) {
	s := NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.UpdateProgress(ctx, "pack", sampleProgress())
	if !errors.Is(err, models.ErrTransientIO) {
		t.Errorf("expected ErrTransientIO, got %v", err)
	}
}

func TestSQLiteStore(t *testing.T) {
	for _, driver := range []string{DriverSQLiteCGO, DriverSQLitePure} {
		t.Run(driver, func(t *testing.T) {
			dbPath := filepath.Join(t.TempDir(), "nested", "promptdeck.db")
			s, err := NewSQLiteStore(WithSQLiteDSN(dbPath), WithSQLiteDriver(driver))
			if err != nil {
				t.Fatalf("NewSQLiteStore: %v", err)
			}
			defer s.Close()
			exerciseStore(t, s)
		})
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "promptdeck.db")
	s1, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	want := sampleProgress()
	if err := s1.UpdateProgress(context.Background(), "pack", want); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(WithSQLiteDSN(dbPath))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if diff := cmp.Diff(want, s2.GetProgress("pack")); diff != "" {
		t.Errorf("progress lost across reopen (-want +got):\n%s", diff)
	}
}

func TestSQLiteStoreCorruptRecordIsAbsent(t *testing.T) {
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "p.db")))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.db.Exec(`INSERT INTO pack_progress (pack_id, progress_json, updated_at) VALUES ('bad', '{not json', '')`); err != nil {
		t.Fatal(err)
	}
	got := s.GetProgress("bad")
	if len(got.CompletedPrompts) != 0 {
		t.Errorf("corrupt record should read as empty, got %+v", got)
	}
}

func TestNewSQLiteStoreRejectsUnknownDriver(t *testing.T) {
	_, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "x.db")), WithSQLiteDriver("bogus"))
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestNewPicksBackend(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Errorf("empty DSN should give *InMemoryStore, got %T", s)
	}

	s, err = New(WithSQLiteDSN(filepath.Join(t.TempDir(), "s.db")))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("file DSN should give *SQLiteStore, got %T", s)
	}
}

func TestDetectDSNType(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"postgres://user@localhost/db", "postgres"},
		{"postgresql://user@localhost/db", "postgres"},
		{"host=localhost user=me dbname=deck", "postgres"},
		{"/var/lib/promptdeck/state.db", "sqlite"},
		{"file:state.db?cache=shared", "sqlite"},
	}
	for _, tt := range tests {
		if got := DetectDSNType(tt.dsn); got != tt.want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}

func TestPostgresStore(t *testing.T) {
	// Requires a running PostgreSQL instance; set DATABASE_URL to enable.
	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		t.Skip("env DATABASE_URL not set")
	}
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	pgStore.db.Exec("DELETE FROM pack_progress")
	pgStore.db.Exec("DELETE FROM notice_ledger")
	exerciseStore(t, pgStore)
}
