package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"podnote/internal/domain"
	"podnote/internal/render"
)

// VisitorID is this device's stable discussion identity.
func (a *App) VisitorID(ctx context.Context) (string, error) {
	return a.repo.VisitorID(ctx)
}

// Discussions lists the saved questions for a published note.
func (a *App) Discussions(ctx context.Context, slug string) ([]domain.Discussion, error) {
	return a.api.Discussions(ctx, slug)
}

// Participated reports whether this device already asked about slug.
func (a *App) Participated(ctx context.Context, slug string) (bool, error) {
	visitor, err := a.VisitorID(ctx)
	if err != nil {
		return false, err
	}
	list, err := a.Discussions(ctx, slug)
	if err != nil {
		return false, err
	}
	for _, d := range list {
		if d.VisitorID == visitor {
			return true, nil
		}
	}
	return false, nil
}

// Discuss asks one question about a published note, streaming the answer to
// emit, then stores the exchange. Each device may ask once per note.
func (a *App) Discuss(ctx context.Context, slug, question string, emit func(string) error) (domain.Discussion, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Discussion{}, fmt.Errorf("%w: question is empty", domain.ErrValidation)
	}
	visitor, err := a.VisitorID(ctx)
	if err != nil {
		return domain.Discussion{}, err
	}
	participated, err := a.Participated(ctx, slug)
	if err != nil {
		return domain.Discussion{}, err
	}
	if participated {
		return domain.Discussion{}, domain.ErrAlreadyParticipated
	}

	var answer strings.Builder
	messages := []domain.ChatMessage{{Role: domain.RoleUser, Content: question}}
	err = a.api.Discuss(ctx, slug, messages, func(chunk string) error {
		answer.WriteString(chunk)
		if emit != nil {
			return emit(chunk)
		}
		return nil
	})
	if err != nil {
		return domain.Discussion{}, err
	}
	if strings.TrimSpace(answer.String()) == "" {
		return domain.Discussion{}, fmt.Errorf("%w: empty answer", domain.ErrUpstream)
	}
	return a.api.SaveDiscussion(ctx, slug, visitor, question, answer.String())
}

// FormatDiscussions renders saved discussions as terminal text.
func FormatDiscussions(list []domain.Discussion) string {
	if len(list) == 0 {
		return "No discussions yet."
	}
	var b strings.Builder
	for i, d := range list {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Q (%s): %s\n", d.CreatedAt.Format("2006-01-02"), d.Question)
		fmt.Fprintf(&b, "A: %s\n", render.Plain(d.Answer))
	}
	return b.String()
}

// ExportState writes the raw persisted wizard state to path.
func (a *App) ExportState(ctx context.Context, path string) error {
	raw, ok, err := a.persist.Raw(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no saved progress to export")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(raw+"\n"), 0o600)
}

// ResetState forgets any saved wizard progress.
func (a *App) ResetState(ctx context.Context) error {
	return a.persist.Clear(ctx)
}
