package notes

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"podnote/internal/contentstore"
	"podnote/internal/domain"
	"podnote/internal/storage"
)

func sampleNote() Note {
	return Note{
		Title:       `Deep Work: "Focus" in practice`,
		Slug:        "deep-work",
		Description: "line one\nline two",
		Date:        time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
		Category:    "Podcast Notes",
		Tags:        []string{"podcast", "focus"},
		SourceURL:   "https://podcasts.apple.com/cn/podcast/x/id1",
		Platform:    domain.PlatformApple,
		AudioURL:    "https://cdn.example.com/a.mp3",
		Duration:    3723,
		Summary:     "## Key Points\n\n- [00:10] Start",
	}
}

func TestRenderRoundTripsFrontmatter(t *testing.T) {
	doc, err := Render(sampleNote())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	fm, body, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if fm.Title != `Deep Work: "Focus" in practice` {
		t.Errorf("title = %q", fm.Title)
	}
	if fm.Description != "line one line two" {
		t.Errorf("description = %q", fm.Description)
	}
	if fm.Date != "2026-10-16" || !fm.Published || fm.Duration != 3723 {
		t.Errorf("unexpected frontmatter %+v", fm)
	}
	if strings.Join(fm.Tags, ",") != "podcast,focus" {
		t.Errorf("tags = %v", fm.Tags)
	}
	if fm.CoverImage != "" {
		t.Errorf("expected empty cover, got %q", fm.CoverImage)
	}
	if body != "## Key Points\n\n- [00:10] Start" {
		t.Errorf("body = %q", body)
	}
}

func TestRenderFieldOrder(t *testing.T) {
	doc, err := Render(sampleNote())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	text := string(doc)
	order := []string{"title:", "slug:", "description:", "date:", "category:", "tags:", "published:", "sourceUrl:", "platform:", "audioUrl:", "duration:"}
	last := -1
	for _, key := range order {
		idx := strings.Index(text, "\n"+key)
		if idx <= last {
			t.Fatalf("key %s out of order in\n%s", key, text)
		}
		last = idx
	}
	if strings.Contains(text, "coverImage:") {
		t.Fatalf("empty optional field should be omitted")
	}
}

func TestRenderDiscussionSummaryWithRawTranscript(t *testing.T) {
	note := sampleNote()
	note.DiscussionSummary = "Condensed points"
	note.Discussion = []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Why?"},
		{Role: domain.RoleAssistant, Content: "Because."},
		{Role: "system", Content: "hidden"},
	}
	doc, _ := Render(note)
	text := string(doc)

	if !strings.Contains(text, discussionHeading+"\n\nCondensed points\n") {
		t.Fatalf("missing condensed section:\n%s", text)
	}
	if !strings.Contains(text, "<details>") || !strings.Contains(text, "**🙋 User**\n\nWhy?") {
		t.Fatalf("missing raw conversation block:\n%s", text)
	}
	if strings.Contains(text, "hidden") {
		t.Fatalf("non-chat roles must be dropped")
	}
}

func TestRenderRawDiscussionFallback(t *testing.T) {
	note := sampleNote()
	note.Discussion = []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Why?"},
		{Role: domain.RoleAssistant, Content: "Because."},
	}
	doc, _ := Render(note)
	text := string(doc)
	if !strings.Contains(text, "**🙋 Why?**\n\nBecause.\n\n") {
		t.Fatalf("unexpected raw discussion:\n%s", text)
	}
	if strings.Contains(text, "<details>") {
		t.Fatalf("raw fallback should not use a collapsible block")
	}
}

func TestRenderObsidian(t *testing.T) {
	doc, err := RenderObsidian(sampleNote())
	if err != nil {
		t.Fatalf("RenderObsidian() error = %v", err)
	}
	text := string(doc)
	if !strings.Contains(text, "tags: [podcast, podcast, focus]") {
		t.Fatalf("unexpected tags:\n%s", text)
	}
	if !strings.Contains(text, "source: https://podcasts.apple.com/cn/podcast/x/id1") {
		t.Fatalf("missing source:\n%s", text)
	}
	if strings.Contains(text, "slug:") {
		t.Fatalf("obsidian export should not carry a slug")
	}
}

func TestGenerateSlug(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	cases := map[string]string{
		"Hello, World!":             "hello-world",
		"  Spaces   and -- dashes ": "spaces-and-dashes",
		"播客 Episode 12":             "episode-12",
		"深度工作":                      "podcast-loyw3v28",
		"ab":                        "podcast-loyw3v28",
		strings.Repeat("a", 100):    strings.Repeat("a", 80),
	}
	for title, want := range cases {
		if got := GenerateSlug(title, now); got != want {
			t.Errorf("GenerateSlug(%q) = %q, want %q", title, got, want)
		}
	}
}

func TestSplitTags(t *testing.T) {
	got := SplitTags(" podcast, ,focus ,")
	if strings.Join(got, "|") != "podcast|focus" {
		t.Fatalf("unexpected tags %v", got)
	}
}

func newPublisher(t *testing.T) (*Publisher, contentstore.Store) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "podnote.db"))
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := contentstore.NewSQLite(db)
	return NewPublisher(store, "content/podcast-notes", 2), store
}

func TestPublishCreatesAndOverwrites(t *testing.T) {
	pub, store := newPublisher(t)
	ctx := context.Background()

	res, err := pub.Publish(ctx, "my-episode", []byte("first"))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.Path != "content/podcast-notes/my-episode.md" {
		t.Fatalf("path = %q", res.Path)
	}
	if _, err := pub.Publish(ctx, "my-episode", []byte("second")); err != nil {
		t.Fatalf("republish: %v", err)
	}

	file, err := store.Get(ctx, res.Path)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(file.Content) != "second" || file.Version != "2" {
		t.Fatalf("unexpected file %+v", file)
	}
}

func TestPublishIdenticalContentIsStable(t *testing.T) {
	pub, _ := newPublisher(t)
	ctx := context.Background()

	doc, _ := Render(sampleNote())
	for i := 0; i < 2; i++ {
		if _, err := pub.Publish(ctx, "deep-work", doc); err != nil {
			t.Fatalf("Publish() #%d error = %v", i, err)
		}
	}
	got, err := pub.Get(ctx, "deep-work")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Markdown != string(doc) {
		t.Fatalf("stored note changed after identical republish")
	}
}

func TestPublishRejectsUnsafeSlug(t *testing.T) {
	pub, _ := newPublisher(t)
	for _, slug := range []string{"", "../etc/passwd", "a/b", "Upper"} {
		if _, err := pub.Publish(context.Background(), slug, []byte("x")); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("slug %q: expected ErrValidation, got %v", slug, err)
		}
	}
}

func TestGetMissingNote(t *testing.T) {
	pub, _ := newPublisher(t)
	if _, err := pub.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
