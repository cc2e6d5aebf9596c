package tui

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"podnote/internal/app"
	"podnote/internal/config"
	"podnote/internal/domain"
	"podnote/internal/storage"
	"podnote/internal/theme"
	"podnote/internal/wizard"
)

type stubAPI struct{}

func (stubAPI) Parse(context.Context, string, string) (domain.PodcastMeta, error) {
	return domain.PodcastMeta{
		Title:       "Stub Episode",
		Description: "An example episode",
		AudioURL:    "https://example.com/audio.mp3",
		Platform:    domain.PlatformApple,
		Duration:    3725,
	}, nil
}

func (stubAPI) Transcribe(context.Context, string, string) (domain.TranscriptionJob, error) {
	return domain.TranscriptionJob{TranscriptID: "tr-1", Status: domain.TranscriptionQueued}, nil
}

func (stubAPI) TranscriptionStatus(_ context.Context, _, id string) (domain.TranscriptionJob, error) {
	return domain.TranscriptionJob{TranscriptID: id, Status: domain.TranscriptionProcessing}, nil
}

func (stubAPI) Chat(context.Context, string, string, []domain.ChatMessage, func(string) error) error {
	return nil
}

func (stubAPI) Publish(context.Context, string, string, []byte) (domain.PublishResult, error) {
	return domain.PublishResult{}, nil
}

// Helper to create a test app
func newTestApp(t *testing.T) *app.App {
	t.Helper()

	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.PodcastSecret = "s3cret"

	db, err := storage.Open(filepath.Join(dir, "app.db"))
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}

	application := app.NewWithDependencies(cfg, filepath.Join(dir, "config.yaml"), db, app.Dependencies{API: stubAPI{}})
	t.Cleanup(func() {
		application.Close()
	})
	if _, err := application.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return application
}

func submit(t *testing.T, m model, input string) (model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(input)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(model), cmd
}

func TestHelpCommandAddsMessage(t *testing.T) {
	m := newModel(context.Background(), newTestApp(t))

	m, _ = submit(t, m, "/help")

	if m.input.Value() != "" {
		t.Fatalf("input not cleared: %q", m.input.Value())
	}
	if last := m.messages[len(m.messages)-1]; !strings.Contains(last, "Commands:") {
		t.Fatalf("expected help output, got %q", last)
	}
	if len(m.history) != 1 || m.history[0] != "/help" {
		t.Fatalf("history = %v", m.history)
	}
}

func TestQuitCommandQuits(t *testing.T) {
	m := newModel(context.Background(), newTestApp(t))

	m, cmd := submit(t, m, "/quit")

	if !m.quitting || cmd == nil {
		t.Fatalf("expected quit, quitting=%v cmd=%v", m.quitting, cmd)
	}
}

func TestMessagesAreBounded(t *testing.T) {
	m := newModel(context.Background(), newTestApp(t))

	for i := 0; i < maxMessages+3; i++ {
		m, _ = submit(t, m, "/nope")
	}
	if len(m.messages) != maxMessages {
		t.Fatalf("len(messages) = %d, want %d", len(m.messages), maxMessages)
	}
}

func TestBackgroundEventAdvancesStep(t *testing.T) {
	a := newTestApp(t)
	m := newModel(context.Background(), a)

	m, _ = submit(t, m, "https://podcasts.apple.com/us/podcast/x/id1?i=2")
	if !a.Session().Loading {
		t.Fatalf("expected parse to be in flight")
	}

	done := make(chan tea.Msg, 1)
	go func() { done <- waitForEvent(a.Events())() }()
	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("no event from executor")
	}

	updated, cmd := m.Update(msg)
	m = updated.(model)
	if cmd == nil {
		t.Fatalf("model should keep listening for events")
	}
	if a.Session().Step != wizard.StepConfirmMeta {
		t.Fatalf("step = %v, want confirm", a.Session().Step)
	}
	view := m.View()
	for _, want := range []string{"Stub Episode", "1h 02m", "/next"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestWindowSizeEnablesViewport(t *testing.T) {
	m := newModel(context.Background(), newTestApp(t))

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = updated.(model)

	if !m.ready || m.viewport.Width != 100 || m.viewport.Height != 40-maxMessages-5 {
		t.Fatalf("viewport not sized: ready=%v %dx%d", m.ready, m.viewport.Width, m.viewport.Height)
	}
	if !strings.Contains(m.View(), "episode URL") {
		t.Fatalf("view missing step one prompt:\n%s", m.View())
	}
}

func TestRenderTranscribingShowsElapsed(t *testing.T) {
	s := wizard.NewSession()
	s.Step = wizard.StepTranscribing
	s.TranscriptID = "tr-9"
	s.Status = domain.TranscriptionProcessing
	s.Elapsed = 75 * time.Second
	s.Polling = true

	out := renderStep(s, theme.ForName(theme.Default))
	for _, want := range []string{"tr-9", "processing", "01:15", "/cancel"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderChatShowsStreamingDraft(t *testing.T) {
	s := wizard.NewSession()
	s.Step = wizard.StepNotesAndChat
	s.Summary = "## Overview\nTalk at [01:02]"
	s.ChatHistory = []domain.ChatMessage{{Role: domain.RoleUser, Content: "Who spoke?"}}
	s.Streaming = wizard.StreamChat
	s.Draft = "Two hosts"

	out := renderStep(s, theme.ForName(theme.Default))
	for _, want := range []string{"Overview", "Who spoke?", "Two hosts"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{59 * time.Second, "00:59"},
		{61 * time.Second, "01:01"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{-time.Second, "00:00"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.in); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q; want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigCommandReleasesTerminal(t *testing.T) {
	m := newModel(context.Background(), newTestApp(t))

	m, cmd := submit(t, m, "/config")
	if cmd == nil {
		t.Fatal("expected a command that runs the editor outside the program")
	}

	updated, _ := m.Update(configEditedMsg{result: app.CommandResult{Message: "Configuration saved."}})
	m = updated.(model)
	if last := m.messages[len(m.messages)-1]; last != "Configuration saved." {
		t.Fatalf("last message = %q", last)
	}
}
