package wizard

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"podnote/internal/apiclient"
	"podnote/internal/contentstore"
	"podnote/internal/discussion"
	"podnote/internal/domain"
	"podnote/internal/notes"
	"podnote/internal/server"
	"podnote/internal/storage"
)

type flowParser struct{}

func (flowParser) Parse(_ context.Context, url string) (domain.PodcastMeta, error) {
	return domain.PodcastMeta{
		Title:      "深度对话 Episode",
		CoverImage: "https://image.xyzcdn.net/cover.jpg",
		AudioURL:   "https://media.xyzcdn.net/abc.m4a",
		Platform:   domain.PlatformXiaoyuzhou,
	}, nil
}

type flowTranscriber struct {
	polls atomic.Int32
}

func (f *flowTranscriber) Submit(_ context.Context, audioURL string) (domain.TranscriptionJob, error) {
	return domain.TranscriptionJob{TranscriptID: "tr-1", Status: domain.TranscriptionQueued}, nil
}

func (f *flowTranscriber) Poll(_ context.Context, id string) (domain.TranscriptionJob, error) {
	if f.polls.Add(1) < 3 {
		return domain.TranscriptionJob{TranscriptID: id, Status: domain.TranscriptionProcessing}, nil
	}
	return domain.TranscriptionJob{TranscriptID: id, Status: domain.TranscriptionCompleted, Text: "[00:00] hello\n[02:05] world"}, nil
}

type flowStreamer struct{}

func (flowStreamer) Stream(_ context.Context, system string, messages []domain.ChatMessage, emit func(string) error) error {
	for _, chunk := range []string{"Overview of ", "the episode at [02:05]."} {
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

func pump(t *testing.T, c *Controller, done func(Session) bool) Session {
	t.Helper()
	timeout := time.After(10 * time.Second)
	for {
		s := c.Session()
		if done(s) {
			return s
		}
		select {
		case ev := <-c.Events():
			c.Dispatch(context.Background(), ev)
		case <-timeout:
			t.Fatalf("timed out at step %v: error=%q notice=%q", s.Step, s.Error, s.Notice)
		}
	}
}

func TestEndToEndPublish(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := storage.Open(filepath.Join(dir, "server.db"))
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	content := contentstore.NewSQLite(db)

	srv := server.New(server.Dependencies{
		Parser:      flowParser{},
		Transcriber: &flowTranscriber{},
		Streamer:    flowStreamer{},
		Publisher:   notes.NewPublisher(content, "", 2),
		Discussions: discussion.New(content, "", 2),
		Secret:      "s3cret",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	api := apiclient.New(ts.Client(), ts.URL, "podnote-test")

	persist := NewPersistence(openRepo(t, filepath.Join(dir, "client.db")), 7*24*time.Hour)
	c := NewController(testMachine(), NewExecutor(api, persist, 10*time.Millisecond), persist)
	t.Cleanup(c.Close)

	if _, err := c.Start(ctx, "s3cret"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	c.Dispatch(ctx, URLSubmitted{URL: "https://www.xiaoyuzhoufm.com/episode/abc"})
	s := pump(t, c, func(s Session) bool { return s.Step == StepConfirmMeta || s.Error != "" })
	if s.Error != "" || s.Meta.Title != "深度对话 Episode" || s.Meta.CoverImage == "" {
		t.Fatalf("confirm step shows %+v (error %q)", s.Meta, s.Error)
	}

	c.Dispatch(ctx, TranscriptionRequested{})
	s = pump(t, c, func(s Session) bool {
		return (s.Step == StepNotesAndChat && s.Streaming == StreamNone) || s.Error != ""
	})
	if s.Error != "" {
		t.Fatalf("unexpected error %q", s.Error)
	}
	if !strings.Contains(s.Transcript, "[02:05] world") {
		t.Fatalf("transcript = %q", s.Transcript)
	}
	if s.Summary != "Overview of the episode at [02:05]." {
		t.Fatalf("summary = %q", s.Summary)
	}

	c.Dispatch(ctx, WentNext{})
	c.Dispatch(ctx, FieldEdited{Field: FieldTitle, Value: "Edited Title"})
	c.Dispatch(ctx, FieldEdited{Field: FieldSlug, Value: "my-episode"})
	if st, ok, _ := persist.Load(ctx); !ok || st.Step != StepEditAndPublish || st.EditSlug != "my-episode" {
		t.Fatalf("edit step not persisted: %+v", st)
	}

	c.Dispatch(ctx, PublishRequested{})
	s = pump(t, c, func(s Session) bool { return s.PublishedSlug != "" || s.Error != "" })
	if s.Error != "" || s.PublishedSlug != "my-episode" || s.Step != StepURLInput {
		t.Fatalf("publish ended with %+v", s)
	}
	if _, ok, _ := persist.Load(ctx); ok {
		t.Fatalf("publishing should clear persisted state")
	}

	note, err := api.Note(ctx, "my-episode")
	if err != nil {
		t.Fatalf("Note: %v", err)
	}
	fm, body, err := notes.Parse([]byte(note.Markdown))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if fm.Title != "Edited Title" || fm.Slug != "my-episode" {
		t.Fatalf("unexpected frontmatter %+v", fm)
	}
	if strings.TrimSpace(body) != "Overview of the episode at [02:05]." {
		t.Fatalf("unexpected body %q", body)
	}
	if !strings.Contains(note.HTML, `data-seconds="125"`) {
		t.Fatalf("timestamps not rendered as buttons: %s", note.HTML)
	}
}
