package repository_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"podnote/internal/repository"
	"podnote/internal/storage"
)

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return repository.New(db)
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}

	if err := store.Put(ctx, "k", "one"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Put(ctx, "k", "two"); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	value, ok, err := store.Get(ctx, "k")
	if err != nil || !ok {
		t.Fatalf("Get: ok %v, err %v", ok, err)
	}
	if value != "two" {
		t.Fatalf("expected last write to win, got %q", value)
	}

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "k"); ok {
		t.Fatalf("expected key to be gone")
	}
}

func TestVisitorIDIsStable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first, err := store.VisitorID(ctx)
	if err != nil {
		t.Fatalf("VisitorID: %v", err)
	}
	if !strings.HasPrefix(first, "visitor_") {
		t.Fatalf("unexpected visitor id %q", first)
	}
	second, err := store.VisitorID(ctx)
	if err != nil {
		t.Fatalf("VisitorID again: %v", err)
	}
	if first != second {
		t.Fatalf("visitor id changed: %q then %q", first, second)
	}
}
