package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDiskStorePutAndDelete(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}

	ctx := context.Background()
	key := "abc/p-1/d-1_report.pdf"
	if err := store.Put(ctx, key, strings.NewReader("%PDF-1.4"), 8, "application/pdf"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(store.basePath, "abc", "p-1", "d-1_report.pdf"))
	if err != nil {
		t.Fatalf("read stored object: %v", err)
	}
	if string(data) != "%PDF-1.4" {
		t.Fatalf("stored content = %q", data)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete missing object: %v", err)
	}
}

func TestDiskStoreRejectsTraversal(t *testing.T) {
	store, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore: %v", err)
	}
	err = store.Put(context.Background(), "../escape.pdf", strings.NewReader("x"), 1, "application/pdf")
	if err == nil {
		t.Fatal("expected traversal key to be rejected")
	}
}
