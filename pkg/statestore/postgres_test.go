package statestore

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row for testing.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// mockDB implements DB for testing.
type mockDB struct {
	queries []string
	args    [][]any
	row     *mockRow
	execErr error
}

func (m *mockDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	m.queries = append(m.queries, sql)
	m.args = append(m.args, args)
	return m.row
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.queries = append(m.queries, sql)
	m.args = append(m.args, args)
	return pgconn.CommandTag{}, m.execErr
}

func TestPostgresStore_LoadNoRows(t *testing.T) {
	t.Parallel()

	db := &mockDB{row: &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}}
	got, err := NewPostgresStore(db).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Recording || got.Filename != "" {
		t.Errorf("Load = %+v, want zero", got)
	}
}

func TestPostgresStore_Load(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	db := &mockDB{row: &mockRow{scanFunc: func(dest ...any) error {
		*dest[0].(*bool) = true
		*dest[1].(*string) = "t.mp3"
		*dest[2].(*time.Time) = at
		return nil
	}}}
	got, err := NewPostgresStore(db).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Recording || got.Filename != "t.mp3" || !got.UpdatedAt.Equal(at) {
		t.Errorf("Load = %+v", got)
	}
}

func TestPostgresStore_SaveUpserts(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	if err := NewPostgresStore(db).Save(context.Background(), State{Recording: true, Filename: "t.mp3"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(db.queries) != 1 || !strings.Contains(db.queries[0], "ON CONFLICT (id) DO UPDATE") {
		t.Fatalf("queries = %v", db.queries)
	}
	args := db.args[0]
	if args[0] != true || args[1] != "t.mp3" {
		t.Errorf("args = %v", args)
	}
	if ts, ok := args[2].(time.Time); !ok || ts.IsZero() {
		t.Errorf("updated_at arg = %v, want non-zero time", args[2])
	}
}

func TestPostgresStore_ErrorsWrap(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	db := &mockDB{execErr: boom, row: &mockRow{scanFunc: func(...any) error { return boom }}}
	s := NewPostgresStore(db)
	if err := s.Migrate(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Migrate = %v", err)
	}
	if err := s.Save(context.Background(), State{}); !errors.Is(err, boom) {
		t.Errorf("Save = %v", err)
	}
	if _, err := s.Load(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Load = %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Ping = %v", err)
	}
}

// TestPostgresStore_Integration runs against a real database and is skipped
// unless TABREC_TEST_POSTGRES_DSN is set.
func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("TABREC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TABREC_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration test")
	}
	ctx := context.Background()
	s, err := OpenPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgresStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	want := State{Recording: true, Filename: "integration.mp3", UpdatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Recording != want.Recording || got.Filename != want.Filename || !got.UpdatedAt.Equal(want.UpdatedAt) {
		t.Errorf("Load = %+v, want %+v", got, want)
	}
	if err := s.Save(ctx, State{}); err != nil {
		t.Fatalf("Save reset: %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
