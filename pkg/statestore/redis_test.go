package statestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"github.com/MrWong99/tabrec/pkg/statestore"
)

func TestRedisStore_Save(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	store := statestore.NewRedisStoreWithClient(db, "")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectHSet(statestore.DefaultRedisKey,
		"recording", "true",
		"filename", "t.mp3",
		"updated_at", at.Format(time.RFC3339Nano),
	).SetVal(3)

	if err := store.Save(context.Background(), statestore.State{Recording: true, Filename: "t.mp3", UpdatedAt: at}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRedisStore_Load(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	store := statestore.NewRedisStoreWithClient(db, "k")

	mock.ExpectHGetAll("k").SetVal(map[string]string{
		"recording":  "true",
		"filename":   "show.mp3",
		"updated_at": "2026-03-01T12:00:00Z",
	})
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.Recording || got.Filename != "show.mp3" || got.UpdatedAt.Year() != 2026 {
		t.Errorf("Load = %+v", got)
	}

	mock.ExpectHGetAll("k").SetVal(map[string]string{})
	got, err = store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}
	if got.Recording || got.Filename != "" {
		t.Errorf("empty hash Load = %+v, want zero", got)
	}

	mock.ExpectHGetAll("k").SetVal(map[string]string{"recording": "maybe"})
	if _, err := store.Load(context.Background()); err == nil {
		t.Error("expected parse error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRedisStore_Errors(t *testing.T) {
	t.Parallel()

	db, mock := redismock.NewClientMock()
	store := statestore.NewRedisStoreWithClient(db, "k")
	boom := errors.New("connection refused")

	mock.ExpectPing().SetErr(boom)
	if err := store.Ping(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Ping = %v, want %v", err, boom)
	}
	mock.ExpectHGetAll("k").SetErr(boom)
	if _, err := store.Load(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Load = %v, want %v", err, boom)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Close on borrowed client: %v", err)
	}
}
