package discussion

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"podnote/internal/contentstore"
	"podnote/internal/domain"
	"podnote/internal/storage"
)

func openStore(t *testing.T) contentstore.Store {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "podnote.db"))
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return contentstore.NewSQLite(db)
}

func countVisitor(list []domain.Discussion, visitor string) int {
	n := 0
	for _, d := range list {
		if d.VisitorID == visitor {
			n++
		}
	}
	return n
}

func TestListWithoutFileIsEmpty(t *testing.T) {
	store := New(openStore(t), "", 2)
	list, err := store.List(context.Background(), "my-episode")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}
}

func TestSaveOnePerVisitor(t *testing.T) {
	store := New(openStore(t), "", 2)
	ctx := context.Background()

	saved, err := store.Save(ctx, "my-episode", "v1", "What is it about?", "Focus.")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.ID == "" || saved.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", saved)
	}

	if _, err := store.Save(ctx, "my-episode", "v1", "Another?", "No."); !errors.Is(err, domain.ErrAlreadyParticipated) {
		t.Fatalf("expected ErrAlreadyParticipated, got %v", err)
	}
	if _, err := store.Save(ctx, "my-episode", "v2", "Second visitor", "Welcome."); err != nil {
		t.Fatalf("second visitor: %v", err)
	}
	if _, err := store.Save(ctx, "other-episode", "v1", "Different slug", "Fine."); err != nil {
		t.Fatalf("same visitor on another slug: %v", err)
	}

	list, err := store.List(ctx, "my-episode")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || countVisitor(list, "v1") != 1 {
		t.Fatalf("unexpected discussions %+v", list)
	}
	if list[0].Question != "What is it about?" {
		t.Fatalf("expected insertion order, got %+v", list)
	}
}

func TestSaveValidatesInput(t *testing.T) {
	store := New(openStore(t), "", 2)
	cases := []struct{ slug, visitor, question, answer string }{
		{"", "v", "q", "a"},
		{"ok", "", "q", "a"},
		{"ok", "v", " ", "a"},
		{"ok", "v", "q", ""},
		{"../x", "v", "q", "a"},
	}
	for _, tc := range cases {
		if _, err := store.Save(context.Background(), tc.slug, tc.visitor, tc.question, tc.answer); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("%+v: expected ErrValidation, got %v", tc, err)
		}
	}
}

// barrierStore holds the first n reads until all of them have arrived, so
// concurrent savers observe the same initial version.
type barrierStore struct {
	contentstore.Store
	reads atomic.Int32
	n     int32
	wg    sync.WaitGroup
}

func newBarrierStore(inner contentstore.Store, n int) *barrierStore {
	b := &barrierStore{Store: inner, n: int32(n)}
	b.wg.Add(n)
	return b
}

func (b *barrierStore) Get(ctx context.Context, path string) (contentstore.File, error) {
	if b.reads.Add(1) <= b.n {
		b.wg.Done()
		b.wg.Wait()
	}
	return b.Store.Get(ctx, path)
}

func TestConcurrentFirstQuestionsFromOneVisitor(t *testing.T) {
	inner := openStore(t)
	store := New(newBarrierStore(inner, 2), "", 2)
	ctx := context.Background()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.Save(ctx, "race", "same-visitor", "question", "answer")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrAlreadyParticipated), errors.Is(err, domain.ErrSaveFailed):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful save, got %d (%v)", succeeded, errs)
	}

	list, err := New(inner, "", 2).List(ctx, "race")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if countVisitor(list, "same-visitor") != 1 {
		t.Fatalf("expected exactly one entry for visitor, got %+v", list)
	}
}

func TestConcurrentDifferentVisitorsAllLand(t *testing.T) {
	inner := openStore(t)
	store := New(newBarrierStore(inner, 2), "", 2)
	ctx := context.Background()

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, visitor := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(i int, visitor string) {
			defer wg.Done()
			_, errs[i] = store.Save(ctx, "busy", visitor, "q", "a")
		}(i, visitor)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	list, _ := store.List(ctx, "busy")
	if len(list) != 2 {
		t.Fatalf("expected both entries after retry, got %+v", list)
	}
}
