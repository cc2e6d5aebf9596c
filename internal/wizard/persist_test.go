package wizard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"podnote/internal/domain"
	"podnote/internal/repository"
	"podnote/internal/storage"
)

func openRepo(t *testing.T, path string) *repository.Store {
	t.Helper()
	db, err := storage.Open(path)
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return repository.New(db)
}

func TestLoadDiscardsExpiredState(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(openRepo(t, filepath.Join(t.TempDir(), "app.db")), 7*24*time.Hour)

	saved := testNow.Add(-7*24*time.Hour - time.Millisecond)
	st := State{Step: StepNotesAndChat, URL: "https://podcasts.apple.com/x/id1", SavedAt: saved.UnixMilli()}
	if err := p.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}

	p.now = func() time.Time { return testNow }
	if _, ok, err := p.Load(ctx); err != nil || ok {
		t.Fatalf("expired state should be absent, ok=%v err=%v", ok, err)
	}
	if _, ok, _ := p.Raw(ctx); ok {
		t.Fatalf("expired state should be removed")
	}
}

func TestLoadKeepsFreshState(t *testing.T) {
	ctx := context.Background()
	p := NewPersistence(openRepo(t, filepath.Join(t.TempDir(), "app.db")), 7*24*time.Hour)
	p.now = func() time.Time { return testNow }

	st := State{
		Step:        StepEditAndPublish,
		Meta:        &domain.PodcastMeta{Title: "Deep Talk", Duration: 3600},
		Summary:     "notes",
		EditSlug:    "deep-talk",
		ChatHistory: []domain.ChatMessage{{ID: "1", Role: domain.RoleUser, Content: "hi"}},
		SavedAt:     testNow.Add(-6 * 24 * time.Hour).UnixMilli(),
	}
	if err := p.Save(ctx, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := p.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("Load: ok=%v err=%v", ok, err)
	}
	if got.Step != StepEditAndPublish || got.Meta.Title != "Deep Talk" || len(got.ChatHistory) != 1 || got.EditSlug != "deep-talk" {
		t.Fatalf("unexpected state %+v", got)
	}
}

func TestLoadDiscardsCorruptState(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t, filepath.Join(t.TempDir(), "app.db"))
	if err := repo.Put(ctx, StateKey, "{not json"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	p := NewPersistence(repo, time.Hour)
	if _, ok, err := p.Load(ctx); err != nil || ok {
		t.Fatalf("corrupt state should be absent, ok=%v err=%v", ok, err)
	}
}

// Two sessions on one device share the state; the later load sees the latest
// write.
func TestSecondTabSeesLatestStep(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "app.db")
	m := testMachine()

	tabA := NewController(m, NewExecutor(noopAPI{}, NewPersistence(openRepo(t, dbPath), time.Hour), time.Hour), NewPersistence(openRepo(t, dbPath), time.Hour))
	t.Cleanup(tabA.Close)
	if _, err := tabA.Start(ctx, "s3cret"); err != nil {
		t.Fatalf("Start A: %v", err)
	}

	tabB := NewController(m, NewExecutor(noopAPI{}, NewPersistence(openRepo(t, dbPath), time.Hour), time.Hour), NewPersistence(openRepo(t, dbPath), time.Hour))
	t.Cleanup(tabB.Close)
	if s, err := tabB.Start(ctx, "s3cret"); err != nil || s.Step != StepURLInput {
		t.Fatalf("Start B before A advanced: step=%v err=%v", s.Step, err)
	}

	tabA.Dispatch(ctx, URLSubmitted{URL: "https://podcasts.apple.com/x/id1"})
	tabA.Dispatch(ctx, MetaParsed{Meta: domain.PodcastMeta{Title: "Deep Talk", AudioURL: "https://cdn/a.mp3"}})
	tabA.Dispatch(ctx, TranscriptionRequested{})
	s := tabA.Dispatch(ctx, TranscriptionSubmitted{Job: domain.TranscriptionJob{TranscriptID: "tr-1", Status: domain.TranscriptionQueued}})
	if s.Step != StepTranscribing {
		t.Fatalf("tab A at step %v", s.Step)
	}

	reloaded, err := tabB.Start(ctx, "s3cret")
	if err != nil {
		t.Fatalf("Start B after A advanced: %v", err)
	}
	if reloaded.Step != StepTranscribing || reloaded.TranscriptID != "tr-1" {
		t.Fatalf("tab B loaded stale state: step=%v id=%q", reloaded.Step, reloaded.TranscriptID)
	}
	if !reloaded.Polling {
		t.Fatalf("resumed transcription should poll again")
	}
}

type noopAPI struct{}

func (noopAPI) Parse(context.Context, string, string) (domain.PodcastMeta, error) {
	return domain.PodcastMeta{}, context.Canceled
}

func (noopAPI) Transcribe(context.Context, string, string) (domain.TranscriptionJob, error) {
	return domain.TranscriptionJob{}, context.Canceled
}

func (noopAPI) TranscriptionStatus(_ context.Context, _, id string) (domain.TranscriptionJob, error) {
	return domain.TranscriptionJob{TranscriptID: id, Status: domain.TranscriptionProcessing}, nil
}

func (noopAPI) Chat(context.Context, string, string, []domain.ChatMessage, func(string) error) error {
	return nil
}

func (noopAPI) Publish(context.Context, string, string, []byte) (domain.PublishResult, error) {
	return domain.PublishResult{}, context.Canceled
}
