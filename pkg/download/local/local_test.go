package local_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/MrWong99/tabrec/pkg/download"
	"github.com/MrWong99/tabrec/pkg/download/local"
)

func TestSave_WritesFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink, err := local.New(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	id, err := sink.Save(context.Background(), download.File{Name: "t.mp3", MIMEType: "audio/mpeg", Data: []byte("ID3data")})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if id == "" {
		t.Fatal("empty download id")
	}
	path, ok := sink.Locate(id)
	if !ok {
		t.Fatal("Locate did not find saved file")
	}
	if filepath.Base(path) != "t.mp3" {
		t.Errorf("path = %s, want t.mp3", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "ID3data" {
		t.Errorf("content = %q", data)
	}
}

func TestSave_Uniquifies(t *testing.T) {
	t.Parallel()

	sink, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var names []string
	for range 3 {
		id, err := sink.Save(context.Background(), download.File{Name: "t.mp3", Data: []byte{1}})
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		p, _ := sink.Locate(id)
		names = append(names, filepath.Base(p))
	}
	want := []string{"t.mp3", "t (1).mp3", "t (2).mp3"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("save %d name = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestSave_SanitizesName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink, err := local.New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id, err := sink.Save(context.Background(), download.File{Name: "../escape.mp3", Data: []byte{1}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	p, _ := sink.Locate(id)
	if filepath.Dir(p) != dir {
		t.Errorf("file written outside sink dir: %s", p)
	}
}

func TestSave_FailureWraps(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sink, err := local.New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = sink.Save(context.Background(), download.File{Name: "t.mp3", Data: []byte{1}})
	if !errors.Is(err, download.ErrDownloadFailure) {
		t.Fatalf("Save = %v, want ErrDownloadFailure", err)
	}
}

func TestNew_EmptyDir(t *testing.T) {
	t.Parallel()

	if _, err := local.New(""); err == nil {
		t.Error("expected error for empty dir")
	}
}
