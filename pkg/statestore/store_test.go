package statestore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/tabrec/pkg/statestore"
)

func TestStores_RoundTrip(t *testing.T) {
	t.Parallel()

	fileStore, err := statestore.NewFileStore(filepath.Join(t.TempDir(), "nested", "state.yaml"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	stores := map[string]statestore.Store{
		"memory": statestore.NewMemoryStore(),
		"file":   fileStore,
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			defer store.Close()

			got, err := store.Load(ctx)
			if err != nil {
				t.Fatalf("Load empty: %v", err)
			}
			if got.Recording || got.Filename != "" {
				t.Errorf("empty store Load = %+v, want zero", got)
			}

			want := statestore.State{Recording: true, Filename: "t.mp3", UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
			if err := store.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err = store.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got.Recording != want.Recording || got.Filename != want.Filename || !got.UpdatedAt.Equal(want.UpdatedAt) {
				t.Errorf("Load = %+v, want %+v", got, want)
			}

			if err := store.Save(ctx, statestore.State{Filename: "t.mp3"}); err != nil {
				t.Fatalf("Save cleared: %v", err)
			}
			got, _ = store.Load(ctx)
			if got.Recording {
				t.Error("last write should win")
			}
		})
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.yaml")
	if err := os.WriteFile(path, []byte("recording: [not a bool"), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := statestore.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Load(context.Background()); err == nil {
		t.Error("expected decode error")
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestNewFileStore_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := statestore.NewFileStore(""); err == nil {
		t.Error("expected error for empty path")
	}
}
