package notes

import (
	"context"
	"fmt"
	"path"

	"podnote/internal/contentstore"
	"podnote/internal/domain"
)

// Published is a note as stored.
type Published struct {
	Slug     string `json:"slug"`
	Path     string `json:"path"`
	Markdown string `json:"markdown"`
}

// Publisher writes notes under a directory of the content store.
type Publisher struct {
	store    contentstore.Store
	dir      string
	attempts int
}

func NewPublisher(store contentstore.Store, dir string, attempts int) *Publisher {
	if dir == "" {
		dir = "content/podcast-notes"
	}
	if attempts <= 0 {
		attempts = 2
	}
	return &Publisher{store: store, dir: dir, attempts: attempts}
}

// Path returns the store path for slug.
func (p *Publisher) Path(slug string) string {
	return path.Join(p.dir, slug+".md")
}

// Publish creates or overwrites the note for slug.
func (p *Publisher) Publish(ctx context.Context, slug string, content []byte) (domain.PublishResult, error) {
	if !ValidSlug(slug) {
		return domain.PublishResult{}, fmt.Errorf("%w: invalid slug %q", domain.ErrValidation, slug)
	}
	if len(content) == 0 {
		return domain.PublishResult{}, fmt.Errorf("%w: content is required", domain.ErrValidation)
	}

	notePath := p.Path(slug)
	entry, err := contentstore.Update(ctx, p.store, notePath, "Add podcast note: "+slug, p.attempts,
		func([]byte, bool) ([]byte, error) {
			return content, nil
		})
	if err != nil {
		return domain.PublishResult{}, err
	}
	return domain.PublishResult{URL: entry.URL, Path: entry.Path}, nil
}

// Get loads a published note.
func (p *Publisher) Get(ctx context.Context, slug string) (Published, error) {
	if !ValidSlug(slug) {
		return Published{}, fmt.Errorf("%w: invalid slug %q", domain.ErrValidation, slug)
	}
	file, err := p.store.Get(ctx, p.Path(slug))
	if err != nil {
		return Published{}, err
	}
	return Published{Slug: slug, Path: file.Path, Markdown: string(file.Content)}, nil
}
