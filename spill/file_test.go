package spill

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestFileStorePutListDelete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFile(FileConfig{Dir: dir, Prefix: "test"})
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	id := uuid.New()
	createdAt := time.Now().Truncate(time.Millisecond)
	data := []byte("hello fluentd")

	if err := store.Put(context.Background(), "app.access", id, createdAt, data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Tag != "app.access" {
		t.Errorf("expected tag app.access, got %q", e.Tag)
	}
	if e.ID != id {
		t.Errorf("expected id %v, got %v", id, e.ID)
	}
	if !e.CreatedAt.Equal(createdAt) {
		t.Errorf("expected createdAt %v, got %v", createdAt, e.CreatedAt)
	}
	if string(e.Data) != string(data) {
		t.Errorf("expected data %q, got %q", data, e.Data)
	}

	if err := store.Delete(context.Background(), e); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	entries, err = store.List(context.Background())
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries after delete, got %d", len(entries))
	}
}

func TestFileStoreIgnoresOtherPrefixes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "other#t#x#1.msgpack"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	store, err := NewFile(FileConfig{Dir: dir, Prefix: "mine"})
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	entries, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries to match a different prefix, got %d", len(entries))
	}
}

func TestFileStoreClear(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFile(FileConfig{Dir: dir, Prefix: "test"})
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := store.Put(context.Background(), "t", uuid.New(), time.Now(), []byte("x")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	if err := store.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	entries, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected Clear to remove every entry, got %d remaining", len(entries))
	}
}

func TestNewFileRequiresDir(t *testing.T) {
	if _, err := NewFile(FileConfig{}); err == nil {
		t.Fatal("expected error for empty Dir")
	}
}
