package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newLocal(t *testing.T) *LocalStorage {
	t.Helper()
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	return storage
}

func TestLocalStorage_PutOpen(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()
	content := []byte("id,name\n1,ann\n")

	if err := storage.Put(ctx, "tables/people.csv", bytes.NewReader(content)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	exists, err := storage.Exists(ctx, "tables/people.csv")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !exists {
		t.Error("expected object to exist")
	}

	r, err := storage.Open(ctx, "tables/people.csv")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	info, err := storage.Stat(ctx, "tables/people.csv")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), info.Size)
	}
	if info.Path != "tables/people.csv" {
		t.Errorf("unexpected path %q", info.Path)
	}
}

func TestLocalStorage_PutReplaces(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()

	_ = storage.Put(ctx, "a.txt", bytes.NewReader([]byte("old")))
	if err := storage.Put(ctx, "a.txt", bytes.NewReader([]byte("new"))); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	r, _ := storage.Open(ctx, "a.txt")
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "new" {
		t.Errorf("expected replaced content, got %q", got)
	}

	objects, _ := storage.ListObjects(ctx, "")
	if len(objects) != 1 {
		t.Errorf("temporary files leaked: %v", objects)
	}
}

func TestLocalStorage_NotFound(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()

	if _, err := storage.Open(ctx, "missing.csv"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound from Open, got %v", err)
	}
	if _, err := storage.Stat(ctx, "missing.csv"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound from Stat, got %v", err)
	}
	exists, err := storage.Exists(ctx, "missing.csv")
	if err != nil || exists {
		t.Errorf("expected (false, nil), got (%v, %v)", exists, err)
	}
}

func TestLocalStorage_DirectoryIsNotAnObject(t *testing.T) {
	storage := newLocal(t)
	if err := os.MkdirAll(filepath.Join(storage.basePath, "dir"), 0755); err != nil {
		t.Fatal(err)
	}
	exists, _ := storage.Exists(context.Background(), "dir")
	if exists {
		t.Error("a directory must not be reported as an object")
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	storage := newLocal(t)
	ctx := context.Background()
	for _, p := range []string{"b/2.csv", "a.csv", "b/1.csv", "c/x.txt"} {
		if err := storage.Put(ctx, p, bytes.NewReader([]byte("x"))); err != nil {
			t.Fatalf("Put %s failed: %v", p, err)
		}
	}

	all, err := storage.ListObjects(ctx, "")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	want := []string{"a.csv", "b/1.csv", "b/2.csv", "c/x.txt"}
	if len(all) != len(want) {
		t.Fatalf("expected %v, got %v", want, all)
	}
	for i := range want {
		if all[i] != want[i] {
			t.Errorf("object %d: expected %s, got %s", i, want[i], all[i])
		}
	}

	sub, _ := storage.ListObjects(ctx, "b")
	if len(sub) != 2 || sub[0] != "b/1.csv" {
		t.Errorf("unexpected prefix listing: %v", sub)
	}

	none, err := storage.ListObjects(ctx, "nope")
	if err != nil || len(none) != 0 {
		t.Errorf("expected empty listing for a missing prefix, got %v, %v", none, err)
	}
}

func TestLocalStorage_CancelledContext(t *testing.T) {
	storage := newLocal(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := storage.Open(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
